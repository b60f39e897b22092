package scraper

import (
	"encoding/json"
	"fmt"
)

// Page scripts. Every script returns a value, never undefined or null, so
// results decode without special cases.

// loggedInScript reports whether any selector matches the document.
func loggedInScript(selectors []string) string {
	return fmt.Sprintf(`(() => %s.some(s => {
	try { return !!document.querySelector(s); } catch (e) { return false; }
}))()`, mustJSON(selectors))
}

// playVideoScript scrolls the first video into view and starts playback
// the way a click would. It does not wait for anything.
const playVideoScript = `(() => {
	const v = document.querySelector('video');
	if (!v) return false;
	try { v.scrollIntoView({block: 'center'}); } catch (e) {}
	try { v.click(); } catch (e) {}
	try { const p = v.play(); if (p && p.catch) p.catch(() => {}); } catch (e) {}
	return true;
})()`

// videoSourcesScript lists the sources of the first video element in
// preference order: currentSrc, src, then <source> children.
const videoSourcesScript = `(() => {
	const v = document.querySelector('video');
	if (!v) return [];
	const out = [];
	if (v.currentSrc) out.push(v.currentSrc);
	if (v.src) out.push(v.src);
	for (const s of v.querySelectorAll('source')) { if (s.src) out.push(s.src); }
	return out;
})()`

// globalsScript serializes the first present global object, skipping
// cycles and functions.
func globalsScript(names []string) string {
	return fmt.Sprintf(`(() => {
	for (const n of %s) {
		const obj = window[n];
		if (!obj) continue;
		const seen = new WeakSet();
		try {
			const s = JSON.stringify(obj, (k, v) => {
				if (typeof v === 'function') return undefined;
				if (typeof v === 'object' && v !== null) {
					if (seen.has(v)) return undefined;
					seen.add(v);
				}
				return v;
			});
			if (s) return s;
		} catch (e) {}
	}
	return '';
})()`, mustJSON(names))
}

// titleProbeScript collects the text lines of up to maxAncestors elements
// above the first video, plus the og:title and document title.
func titleProbeScript(maxAncestors int) string {
	return fmt.Sprintf(`(() => {
	const levels = [];
	const v = document.querySelector('video');
	let el = v ? v.parentElement : null;
	for (let i = 0; el && i < %d; i++, el = el.parentElement) {
		levels.push((el.innerText || '').split('\n').map(s => s.trim()).filter(Boolean));
	}
	const og = document.querySelector('meta[property="og:title"]');
	return {levels: levels, og: og ? (og.getAttribute('content') || '') : '', doc: document.title || ''};
})()`, maxAncestors)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

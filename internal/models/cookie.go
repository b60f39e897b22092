package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Cookie is one browser cookie of a captured session.
// Expires is in unix seconds; zero or negative means a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieRecord is a stored, encrypted session credential.
// The record with the newest SavedAt is authoritative.
type CookieRecord struct {
	ID          surrealmodels.RecordID `json:"id"`
	Encrypted   string                 `json:"encrypted"`
	SavedAt     time.Time              `json:"saved_at"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
	Valid       bool                   `json:"valid"`
	LastChecked *time.Time             `json:"last_checked,omitempty"`
}

// ErrNoCookies indicates an upload without any usable cookie.
var ErrNoCookies = errors.New("no cookies found")

// EarliestExpiry returns the soonest expiry among persistent cookies, or nil
// when every cookie is a session cookie.
func EarliestExpiry(cookies []Cookie) *time.Time {
	earliest := math.Inf(1)
	for _, c := range cookies {
		if c.Expires > 0 && c.Expires < earliest {
			earliest = c.Expires
		}
	}
	if math.IsInf(earliest, 1) {
		return nil
	}
	sec, frac := math.Modf(earliest)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return &t
}

// jsonCookie accepts the field spellings of common browser export tools.
type jsonCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Host           string   `json:"host"`
	Path           string   `json:"path"`
	Expires        *float64 `json:"expires"`
	ExpirationDate *float64 `json:"expirationDate"`
	HTTPOnly       bool     `json:"httpOnly"`
	Secure         bool     `json:"secure"`
	SameSite       any      `json:"sameSite"`
}

// ParseCookies decodes a cookie export. It accepts a JSON array, a JSON
// object with a "cookies" array, or a Netscape cookies.txt file.
func ParseCookies(data []byte) ([]Cookie, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNoCookies
	}

	var cookies []Cookie
	var err error
	switch trimmed[0] {
	case '[':
		cookies, err = parseJSONCookies(trimmed)
	case '{':
		var wrapper struct {
			Cookies json.RawMessage `json:"cookies"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("parse cookie object: %w", err)
		}
		if len(wrapper.Cookies) == 0 {
			return nil, ErrNoCookies
		}
		cookies, err = parseJSONCookies(wrapper.Cookies)
	default:
		cookies = parseNetscapeCookies(string(trimmed))
	}
	if err != nil {
		return nil, err
	}
	if len(cookies) == 0 {
		return nil, ErrNoCookies
	}
	return cookies, nil
}

func parseJSONCookies(data []byte) ([]Cookie, error) {
	var raw []jsonCookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cookie array: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, r := range raw {
		if r.Name == "" {
			continue
		}
		c := Cookie{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     r.Path,
			HTTPOnly: r.HTTPOnly,
			Secure:   r.Secure,
			SameSite: normalizeSameSite(r.SameSite),
		}
		if c.Domain == "" {
			c.Domain = r.Host
		}
		if c.Path == "" {
			c.Path = "/"
		}
		switch {
		case r.Expires != nil:
			c.Expires = *r.Expires
		case r.ExpirationDate != nil:
			c.Expires = *r.ExpirationDate
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

// normalizeSameSite maps export spellings (strings or Firefox's integers)
// onto Strict, Lax or None. Unknown values are dropped.
func normalizeSameSite(v any) string {
	switch s := v.(type) {
	case string:
		switch strings.ToLower(s) {
		case "strict":
			return "Strict"
		case "lax":
			return "Lax"
		case "none", "no_restriction":
			return "None"
		}
	case float64:
		switch s {
		case 1:
			return "Lax"
		case 2:
			return "Strict"
		case 3:
			return "None"
		}
	}
	return ""
}

const netscapeHTTPOnlyPrefix = "#HttpOnly_"

func parseNetscapeCookies(content string) []Cookie {
	var cookies []Cookie
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		httpOnly := false
		if strings.HasPrefix(line, netscapeHTTPOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, netscapeHTTPOnlyPrefix)
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		c := Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HTTPOnly: httpOnly,
		}
		if exp, err := strconv.ParseFloat(fields[4], 64); err == nil && exp > 0 {
			c.Expires = exp
		}
		cookies = append(cookies, c)
	}
	return cookies
}

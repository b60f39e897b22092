package media

// Pairing describes how an audio track was chosen for a video.
type Pairing string

const (
	// PairingNone means there was no audio candidate at all.
	PairingNone Pairing = "none"
	// PairingMatched means descriptors tie the audio to the same asset.
	PairingMatched Pairing = "matched"
	// PairingFallback means no descriptor matched and the first captured
	// audio was taken. It may belong to a different asset.
	PairingFallback Pairing = "fallback"
	// PairingEmbedded means the audio URL came from the same page data as
	// the video URL, without descriptor evidence.
	PairingEmbedded Pairing = "embedded"
)

// PairAudio picks the audio candidate that belongs to the same asset as
// video: decoded asset ids or decoded video ids must agree. Without a match
// the first audio candidate is returned with PairingFallback.
func PairAudio(video StreamCandidate, audio []StreamCandidate) (StreamCandidate, Pairing) {
	if len(audio) == 0 {
		return StreamCandidate{}, PairingNone
	}

	for _, a := range audio {
		if sameAsset(video, a) {
			return a, PairingMatched
		}
	}
	return audio[0], PairingFallback
}

func sameAsset(v, a StreamCandidate) bool {
	if v.AssetID != "" && v.AssetID == a.AssetID {
		return true
	}
	return v.VideoID != "" && v.VideoID == a.VideoID
}

// Package report shapes analysis result payloads for the reader's tier.
package report

import (
	_ "embed"
	"encoding/json"
)

// DemoVideoID is the public interview the demo report describes.
const DemoVideoID = "y8OnoxCotHE"

//go:embed demo.json
var demoPayload []byte

// Demo returns the canned report used for DEMO_MODE submissions.
func Demo() json.RawMessage {
	out := make(json.RawMessage, len(demoPayload))
	copy(out, demoPayload)
	return out
}

// previewSections are visible on the free tier.
var previewSections = []string{
	"analysis_reliability",
	"video_metadata",
	"overall_performance",
	"high_level_metrics",
}

// Redact keeps only the preview sections and marks the payload locked.
// Payloads that are not JSON objects are dropped entirely.
func Redact(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return payload
	}
	var full map[string]json.RawMessage
	if err := json.Unmarshal(payload, &full); err != nil {
		return json.RawMessage(`{"locked":true}`)
	}
	out := make(map[string]json.RawMessage, len(previewSections)+1)
	for _, k := range previewSections {
		if v, ok := full[k]; ok {
			out[k] = v
		}
	}
	out["locked"] = json.RawMessage("true")
	b, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`{"locked":true}`)
	}
	return b
}

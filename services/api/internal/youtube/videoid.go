// Package youtube extracts video ids from the URL shapes users paste.
package youtube

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrInvalidURL = errors.New("youtube: no video id in url")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID accepts watch, youtu.be, shorts, embed, live and
// youtube-nocookie URLs, or a bare 11-character id.
func VideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if idPattern.MatchString(raw) {
		return raw, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case segments[0] == "watch":
			id = u.Query().Get("v")
		case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
			id = segments[1]
		}
	}
	if !idPattern.MatchString(id) {
		return "", ErrInvalidURL
	}
	return id, nil
}

// WatchURL is the canonical URL for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

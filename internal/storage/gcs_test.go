package storage

import (
	"regexp"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(1716200000123)
	pattern := regexp.MustCompile(`^1716200000123_[0-9a-f]{13}\.(mp3|bin)$`)

	if key := ObjectKey("Call Recording.MP3", now); !pattern.MatchString(key) || key[len(key)-3:] != "mp3" {
		t.Fatalf("unexpected key %q", key)
	}
	if key := ObjectKey("noextension", now); !pattern.MatchString(key) || key[len(key)-3:] != "bin" {
		t.Fatalf("expected bin fallback, got %q", key)
	}
	if ObjectKey("a.wav", now) == ObjectKey("a.wav", now) {
		t.Fatalf("expected random component to differ between calls")
	}
}

func TestPublicURL(t *testing.T) {
	if got := PublicURL("", "recordings", "/x.mp3"); got != "https://storage.googleapis.com/recordings/x.mp3" {
		t.Fatalf("unexpected default url %q", got)
	}
	if got := PublicURL("http://localhost:4443", "recordings", "x.mp3"); got != "http://localhost:4443/recordings/x.mp3" {
		t.Fatalf("unexpected custom url %q", got)
	}
}

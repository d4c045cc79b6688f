package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

	in := Document{
		"createdAt": ServerTimestamp,
		"name":      "Campus Link",
		"teamSize":  3,
	}

	out := ResolveTimestamps(in, now)

	assert.Equal(t, now.UTC(), out["createdAt"])
	assert.Equal(t, "Campus Link", out["name"])
	assert.Equal(t, 3, out["teamSize"])

	// The input keeps its placeholder.
	assert.Equal(t, ServerTimestamp, in["createdAt"])
}

func TestEq(t *testing.T) {
	f := Eq("ownerId", "uid-1")
	assert.Equal(t, Filter{Field: "ownerId", Value: "uid-1"}, f)
}

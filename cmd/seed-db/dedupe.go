package main

import (
	"context"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const bloomFPR = 0.001

// findSuspects streams every file once and returns the emails that may occur
// more than once. The set holds every real duplicate plus the filter's false
// positives, so it stays small when the input is mostly unique.
func findSuspects(ctx context.Context, files []string, capacity uint) (map[string]struct{}, error) {
	if capacity == 0 {
		capacity = 1
	}
	filter := bloom.NewWithEstimates(capacity, bloomFPR)
	suspects := make(map[string]struct{})

	for _, path := range files {
		err := streamFile(ctx, path, func(_ int, data []byte) error {
			u, err := decodeSeedUser(data)
			if err != nil || u.Email == "" {
				// Reported in the load pass.
				return nil
			}
			if filter.TestOrAddString(u.Email) {
				suspects[u.Email] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", path)
		}
	}
	return suspects, nil
}

// deduper admits the first occurrence of every email. Only suspects are
// tracked; any other email is known to occur once.
type deduper struct {
	suspects map[string]struct{}
	admitted map[string]struct{}
}

func newDeduper(suspects map[string]struct{}) *deduper {
	return &deduper{suspects: suspects, admitted: make(map[string]struct{}, len(suspects))}
}

func (d *deduper) admit(email string) bool {
	if _, ok := d.suspects[email]; !ok {
		return true
	}
	if _, ok := d.admitted[email]; ok {
		return false
	}
	d.admitted[email] = struct{}{}
	return true
}

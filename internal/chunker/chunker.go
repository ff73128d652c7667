// Package chunker splits raw text into overlapping chunks bounded by a
// character budget, preferring to cut on a separator.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"edital-assistant/internal/models"
)

var ErrInvalidOptions = errors.New("invalid chunker options")

// Options are measured in runes.
type Options struct {
	Size      int
	Overlap   int
	Separator string
}

func (o Options) validate() error {
	switch {
	case o.Size <= 0:
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidOptions, o.Size)
	case o.Overlap < 0 || o.Overlap >= o.Size:
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidOptions, o.Size, o.Overlap)
	case o.Separator == "":
		return fmt.Errorf("%w: empty separator", ErrInvalidOptions)
	}
	return nil
}

// span is a separator-delimited unit, [start, end) in runes.
type span struct {
	start, end int
}

// Split packs separator-delimited units into chunks of at most Size runes.
// A unit longer than Size becomes a chunk of its own. Each chunk after the
// first starts Overlap runes before the end of the previous one, unless the
// previous chunk is not longer than Overlap or the overlap would push the
// next unit past Size; then it starts at the next unit.
func Split(text string, opts Options) ([]models.Chunk, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	units := splitUnits(runes, []rune(opts.Separator))
	if len(units) == 0 {
		return []models.Chunk{}, nil
	}

	var chunks []models.Chunk
	i, start := 0, units[0].start
	for {
		j := i
		for j+1 < len(units) && units[j+1].end-start <= opts.Size {
			j++
		}
		end := units[j].end
		chunks = append(chunks, models.Chunk{
			Index:   len(chunks),
			Content: string(runes[start:end]),
			Start:   start,
			End:     end,
		})
		if j+1 == len(units) {
			break
		}

		next := units[j+1]
		overlapStart := end - opts.Overlap
		if opts.Overlap > 0 && overlapStart > start && next.end-overlapStart <= opts.Size {
			start = overlapStart
		} else {
			start = next.start
		}
		i = j + 1
	}
	return chunks, nil
}

// splitUnits returns the non-blank units of runes, in order.
func splitUnits(runes, sep []rune) []span {
	var units []span
	emit := func(s, e int) {
		if strings.TrimFunc(string(runes[s:e]), unicode.IsSpace) != "" {
			units = append(units, span{s, e})
		}
	}

	unitStart := 0
	for k := 0; k+len(sep) <= len(runes); {
		if hasPrefixAt(runes, sep, k) {
			emit(unitStart, k)
			k += len(sep)
			unitStart = k
			continue
		}
		k++
	}
	emit(unitStart, len(runes))
	return units
}

func hasPrefixAt(runes, sep []rune, at int) bool {
	for n, r := range sep {
		if runes[at+n] != r {
			return false
		}
	}
	return true
}

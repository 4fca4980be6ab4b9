package outline

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ImportMarkdown ingests a bullet outline into a page of the given graph.
// Each "- " line becomes a block; indentation (two spaces per level) nests
// blocks; "key:: value" lines attach properties to the preceding block.
// Returns the UUIDs of the created root blocks.
//
// The target page is replaced block-by-block only in the sense that new
// blocks are appended; existing content is left alone.
func ImportMarkdown(g Graph, page string, r io.Reader) ([]string, error) {
	type frame struct {
		depth int
		uuid  string
	}

	propSetter, canSetProps := g.(interface {
		SetProperty(id, key, value string) error
	})

	var roots []string
	var stack []frame
	var last string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		indent := len(raw) - len(strings.TrimLeft(raw, " \t"))
		trimmed := strings.TrimSpace(raw)

		// Property line attaches to the most recent block.
		if !strings.HasPrefix(trimmed, "- ") && strings.Contains(trimmed, "::") {
			if last == "" || !canSetProps {
				continue
			}
			parts := strings.SplitN(trimmed, "::", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key != "" {
				if err := propSetter.SetProperty(last, key, value); err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
			}
			continue
		}

		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(trimmed, "- "))
		depth := indent / 2

		// Pop frames deeper or equal to this line's depth.
		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}

		target := CreateTarget{Page: page}
		if len(stack) > 0 {
			target = CreateTarget{ParentUUID: stack[len(stack)-1].uuid}
		}

		id, err := g.Create(target, text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(stack) == 0 {
			roots = append(roots, id)
		}
		stack = append(stack, frame{depth: depth, uuid: id})
		last = id
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}

	return roots, nil
}

package profiling

import (
	"fmt"
	"strconv"
	"strings"
)

// ParentRef is one dependency entry in a /times payload's parents field:
// a parent lineage signature plus the partition ids it fed into this
// operator's partition ("parentLineage,pid1,pid2" on the wire).
type ParentRef struct {
	Lineage      string
	PartitionIDs []int
}

// TimeMessage is a decoded /times payload: lineage;partitionId;parents;timeMillis.
type TimeMessage struct {
	Lineage     string
	PartitionID int
	Parents     []ParentRef
	TimeMillis  int64
}

// SizeMessage is one lineage:bytes pair from a /sizes payload.
type SizeMessage struct {
	Lineage string
	Bytes   int64
}

// parseTimeMessage decodes the field-delimited wire payload: four
// `;`-separated fields, the third of which is itself a `#`-delimited list
// of `,`-separated parent entries.
func parseTimeMessage(data string) (TimeMessage, error) {
	fields := strings.Split(data, ";")
	if len(fields) != 4 {
		return TimeMessage{}, fmt.Errorf("times payload: want 4 fields, got %d", len(fields))
	}

	partitionID, err := strconv.Atoi(fields[1])
	if err != nil {
		return TimeMessage{}, fmt.Errorf("times payload: partitionId: %w", err)
	}
	parents, err := parseParents(fields[2])
	if err != nil {
		return TimeMessage{}, fmt.Errorf("times payload: %w", err)
	}
	timeMillis, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return TimeMessage{}, fmt.Errorf("times payload: timeMillis: %w", err)
	}

	return TimeMessage{
		Lineage:     fields[0],
		PartitionID: partitionID,
		Parents:     parents,
		TimeMillis:  timeMillis,
	}, nil
}

// parseParents splits the `#`-delimited dependency list, each entry being
// a parent lineage followed by one or more `,`-separated partition ids.
func parseParents(s string) ([]ParentRef, error) {
	var refs []ParentRef
	for _, entry := range strings.Split(s, "#") {
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ",")
		ref := ParentRef{Lineage: parts[0]}
		for _, p := range parts[1:] {
			pid, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("parent %q: partition id: %w", entry, err)
			}
			ref.PartitionIDs = append(ref.PartitionIDs, pid)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// parseSizeMessages decodes a `;`-delimited list of `lineage:bytes` pairs.
func parseSizeMessages(data string) ([]SizeMessage, error) {
	var out []SizeMessage
	for _, entry := range strings.Split(data, ";") {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("sizes payload: malformed entry %q", entry)
		}
		bytes, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sizes payload: %q: %w", entry, err)
		}
		out = append(out, SizeMessage{Lineage: parts[0], Bytes: bytes})
	}
	return out, nil
}

package disk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/larsks/vmbuild/internal/runner"
)

// TableEntry is a partition as recorded in an on-disk partition table.
type TableEntry struct {
	Node  string `json:"node"`
	Start int64  `json:"start"`
	Size  int64  `json:"size"`
	Type  string `json:"type"`
}

// Table is the on-disk partition table of a backing file, as reported by
// sfdisk. Start and Size are in sectors.
type Table struct {
	Label      string       `json:"label"`
	ID         string       `json:"id"`
	Device     string       `json:"device"`
	Unit       string       `json:"unit"`
	SectorSize int64        `json:"sectorsize"`
	Partitions []TableEntry `json:"partitions"`
}

type sfdiskOutput struct {
	PartitionTable Table `json:"partitiontable"`
}

func parseTable(data []byte) (*Table, error) {
	var out sfdiskOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse sfdisk output: %w", err)
	}

	if out.PartitionTable.SectorSize == 0 {
		out.PartitionTable.SectorSize = 512
	}

	return &out.PartitionTable, nil
}

// Table reads the partition table back from the backing file.
func (d *Disk) Table(ctx context.Context) (*Table, error) {
	out, err := runner.Output(ctx, d.runner(), "sfdisk", "-J", d.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions of %s: %w", d.filename, err)
	}

	return parseTable([]byte(out))
}

package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `{
   "partitiontable": {
      "label": "dos",
      "id": "0x3b9e0a1c",
      "device": "/tmp/disk.img",
      "unit": "sectors",
      "sectorsize": 512,
      "partitions": [
         {"node": "/tmp/disk.img1", "start": 2048, "size": 1046528, "type": "83"},
         {"node": "/tmp/disk.img2", "start": 1048576, "size": 1048576, "type": "82"}
      ]
   }
}`

func TestParseTable(t *testing.T) {
	table, err := parseTable([]byte(sampleTable))
	require.NoError(t, err)

	assert.Equal(t, "dos", table.Label)
	assert.Equal(t, int64(512), table.SectorSize)
	require.Len(t, table.Partitions, 2)
	assert.Equal(t, int64(2048), table.Partitions[0].Start)
	assert.Equal(t, "82", table.Partitions[1].Type)
}

func TestParseTableDefaultsSectorSize(t *testing.T) {
	table, err := parseTable([]byte(`{"partitiontable": {"label": "dos", "partitions": []}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(512), table.SectorSize)
}

func TestParseTableInvalid(t *testing.T) {
	_, err := parseTable([]byte("not json"))
	assert.Error(t, err)
}

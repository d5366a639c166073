package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func docWithSerials(lines ...[]string) Document {
	doc := Document{Version: 5}
	for i, values := range lines {
		line := LineItem{LineNumber: i + 1, ItemCode: "ITM", Quantity: float64(len(values)), SerialTracked: true}
		for _, v := range values {
			line.Serials = append(line.Serials, SerialNumber{Value: v})
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc
}

func TestCheckCleanDocument(t *testing.T) {
	doc := docWithSerials([]string{"A", "B"}, []string{"C"})
	require.Empty(t, Check(doc, 5))
}

func TestCheckFindsDuplicateAcrossLines(t *testing.T) {
	doc := docWithSerials([]string{"A", "B"}, []string{"B", "C"})
	conflicts := Check(doc, 5)
	require.Len(t, conflicts, 1)
	require.Equal(t, ConflictDuplicateSerial, conflicts[0].Kind)
	require.Equal(t, "B", conflicts[0].Serial)
	require.Equal(t, 2, conflicts[0].LineNumber)
	require.Equal(t, "first seen on line 1", conflicts[0].Detail)
}

func TestCheckFindsDuplicateWithinLine(t *testing.T) {
	doc := docWithSerials([]string{"A", "B", "A"})
	conflicts := Check(doc, 5)
	require.Len(t, conflicts, 1)
	require.Equal(t, "A", conflicts[0].Serial)
}

func TestCheckFindsStaleVersion(t *testing.T) {
	doc := docWithSerials([]string{"A"})
	conflicts := Check(doc, 4)
	require.Len(t, conflicts, 1)
	require.Equal(t, ConflictStaleVersion, conflicts[0].Kind)
}

func TestCheckReportsEveryRepeat(t *testing.T) {
	doc := docWithSerials([]string{"X", "X", "X"})
	conflicts := Check(doc, 5)
	require.Len(t, conflicts, 2)
	for _, c := range conflicts {
		require.Equal(t, ConflictDuplicateSerial, c.Kind)
		require.Equal(t, "X", c.Serial)
	}
}

package posting

import (
	"encoding/json"
	"time"

	"github.com/stockbridge/stockbridge/internal/documents"
	"github.com/stockbridge/stockbridge/internal/erp"
)

type payloadSerial struct {
	InternalSerialNumber string  `json:"InternalSerialNumber"`
	BaseLineNumber       int     `json:"BaseLineNumber"`
	Quantity             float64 `json:"Quantity"`
}

type payloadLine struct {
	ItemCode        string          `json:"ItemCode"`
	ItemDescription string          `json:"ItemDescription,omitempty"`
	Quantity        float64         `json:"Quantity"`
	WarehouseCode   string          `json:"WarehouseCode"`
	BinCode         string          `json:"BinAbsEntry,omitempty"`
	SerialNumbers   []payloadSerial `json:"SerialNumbers,omitempty"`
}

type payloadBody struct {
	DocDate    string        `json:"DocDate"`
	DocDueDate string        `json:"DocDueDate,omitempty"`
	CardCode   string        `json:"CardCode,omitempty"`
	BranchID   int64         `json:"BPL_IDAssignedToInvoice,omitempty"`
	BranchName string        `json:"BPLName,omitempty"`
	Comments   string        `json:"Comments,omitempty"`
	Lines      []payloadLine `json:"DocumentLines"`
}

// BuildPayload translates a document into the wire shape the external
// system expects. The build is deterministic for an unchanged document,
// which keeps retried attempts byte-comparable.
func BuildPayload(doc documents.Document, now time.Time) (erp.DocumentPayload, error) {
	body := payloadBody{
		DocDate:    now.UTC().Format("2006-01-02T15:04:05.000Z"),
		DocDueDate: now.UTC().Add(24 * time.Hour).Format("2006-01-02T15:04:05.000Z"),
		CardCode:   doc.PartnerCode,
		BranchID:   doc.BranchID,
		BranchName: doc.BranchName,
		Comments:   doc.Notes,
	}
	for _, line := range doc.Lines {
		pl := payloadLine{
			ItemCode:        line.ItemCode,
			ItemDescription: line.ItemDescription,
			Quantity:        line.Quantity,
			WarehouseCode:   line.WarehouseCode,
			BinCode:         line.BinCode,
		}
		for _, serial := range line.Serials {
			pl.SerialNumbers = append(pl.SerialNumbers, payloadSerial{
				InternalSerialNumber: serial.Value,
				BaseLineNumber:       line.LineNumber - 1,
				Quantity:             1.0,
			})
		}
		body.Lines = append(body.Lines, pl)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return erp.DocumentPayload{}, err
	}
	return erp.DocumentPayload{Type: string(doc.Type), Body: raw}, nil
}

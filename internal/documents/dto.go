package documents

import "time"

// CreateDocumentRequest is the JSON payload for POST /documents.
type CreateDocumentRequest struct {
	Type        string             `json:"type" validate:"required,oneof=GRPO TRANSFER INVOICE"`
	Number      string             `json:"number" validate:"omitempty,max=40"`
	BranchID    int64              `json:"branch_id" validate:"required,gt=0"`
	BranchName  string             `json:"branch_name" validate:"max=120"`
	PartnerCode string             `json:"partner_code" validate:"max=40"`
	PartnerName string             `json:"partner_name" validate:"max=120"`
	Notes       string             `json:"notes" validate:"max=2000"`
	Lines       []LineItemRequest  `json:"lines" validate:"required,min=1,dive"`
}

// LineItemRequest is one line of a create or update payload.
type LineItemRequest struct {
	ItemCode        string          `json:"item_code" validate:"required,max=40"`
	ItemDescription string          `json:"item_description" validate:"max=200"`
	Quantity        float64         `json:"quantity" validate:"required,gt=0"`
	WarehouseCode   string          `json:"warehouse_code" validate:"required,max=20"`
	BinCode         string          `json:"bin_code" validate:"max=40"`
	SerialTracked   bool            `json:"serial_tracked"`
	Serials         []SerialRequest `json:"serials" validate:"dive"`
}

// SerialRequest is one scanned serial.
type SerialRequest struct {
	Value  string `json:"value" validate:"required,max=80"`
	Source string `json:"source" validate:"omitempty,oneof=scan import manual"`
}

// UpdateLinesRequest replaces a draft's lines.
type UpdateLinesRequest struct {
	Version int64             `json:"version" validate:"required,gt=0"`
	Lines   []LineItemRequest `json:"lines" validate:"required,min=1,dive"`
}

// VersionedRequest carries just the caller's last-read version.
type VersionedRequest struct {
	Version int64 `json:"version" validate:"required,gt=0"`
}

// OverrideRequest flips the duplicate override.
type OverrideRequest struct {
	Version int64 `json:"version" validate:"required,gt=0"`
	Allow   bool  `json:"allow"`
}

// ReasonedRequest carries a version and a reason (reject, abandon).
type ReasonedRequest struct {
	Version int64  `json:"version" validate:"required,gt=0"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

// DocumentResponse is the JSON shape of one document.
type DocumentResponse struct {
	ID                    int64          `json:"id"`
	Number                string         `json:"number"`
	Type                  string         `json:"type"`
	State                 string         `json:"state"`
	Version               int64          `json:"version"`
	BranchID              int64          `json:"branch_id"`
	BranchName            string         `json:"branch_name,omitempty"`
	PartnerCode           string         `json:"partner_code,omitempty"`
	PartnerName           string         `json:"partner_name,omitempty"`
	AllowDuplicateSerials bool           `json:"allow_duplicate_serials"`
	RemoteDocEntry        int64          `json:"remote_doc_entry,omitempty"`
	RemoteDocNum          string         `json:"remote_doc_num,omitempty"`
	RejectReason          string         `json:"reject_reason,omitempty"`
	Notes                 string         `json:"notes,omitempty"`
	CreatedBy             int64          `json:"created_by"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	Lines                 []LineResponse `json:"lines,omitempty"`
	Actions               []Action       `json:"actions,omitempty"`
}

// LineResponse is one line in a document response.
type LineResponse struct {
	ID              int64            `json:"id"`
	LineNumber      int              `json:"line_number"`
	ItemCode        string           `json:"item_code"`
	ItemDescription string           `json:"item_description,omitempty"`
	Quantity        float64          `json:"quantity"`
	WarehouseCode   string           `json:"warehouse_code"`
	BinCode         string           `json:"bin_code,omitempty"`
	SerialTracked   bool             `json:"serial_tracked"`
	Serials         []SerialResponse `json:"serials,omitempty"`
}

// SerialResponse is one serial in a document response.
type SerialResponse struct {
	ID            int64  `json:"id"`
	Value         string `json:"value"`
	Status        string `json:"status"`
	Source        string `json:"source,omitempty"`
	ItemCode      string `json:"item_code,omitempty"`
	WarehouseCode string `json:"warehouse_code,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// ConflictResponse is one conflict in a check or submit response.
type ConflictResponse struct {
	Kind       string `json:"kind"`
	LineNumber int    `json:"line_number,omitempty"`
	Serial     string `json:"serial,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// ListResponse wraps a document listing.
type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
}

// SubmitResponse reports the submit outcome: the document, any conflicts
// found, and whether validation fully completed.
type SubmitResponse struct {
	Document           DocumentResponse   `json:"document"`
	Conflicts          []ConflictResponse `json:"conflicts,omitempty"`
	ValidationComplete bool               `json:"validation_complete"`
}

func toDocumentResponse(doc Document) DocumentResponse {
	resp := DocumentResponse{
		ID:                    doc.ID,
		Number:                doc.Number,
		Type:                  string(doc.Type),
		State:                 string(doc.State),
		Version:               doc.Version,
		BranchID:              doc.BranchID,
		BranchName:            doc.BranchName,
		PartnerCode:           doc.PartnerCode,
		PartnerName:           doc.PartnerName,
		AllowDuplicateSerials: doc.AllowDuplicateSerials,
		RemoteDocEntry:        doc.RemoteDocEntry,
		RemoteDocNum:          doc.RemoteDocNum,
		RejectReason:          doc.RejectReason,
		Notes:                 doc.Notes,
		CreatedBy:             doc.CreatedBy,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
	}
	for _, line := range doc.Lines {
		lineResp := LineResponse{
			ID:              line.ID,
			LineNumber:      line.LineNumber,
			ItemCode:        line.ItemCode,
			ItemDescription: line.ItemDescription,
			Quantity:        line.Quantity,
			WarehouseCode:   line.WarehouseCode,
			BinCode:         line.BinCode,
			SerialTracked:   line.SerialTracked,
		}
		for _, serial := range line.Serials {
			lineResp.Serials = append(lineResp.Serials, SerialResponse{
				ID:            serial.ID,
				Value:         serial.Value,
				Status:        string(serial.Status),
				Source:        serial.Source,
				ItemCode:      serial.ItemCode,
				WarehouseCode: serial.WarehouseCode,
				Detail:        serial.Detail,
			})
		}
		resp.Lines = append(resp.Lines, lineResp)
	}
	return resp
}

func toConflictResponses(conflicts []Conflict) []ConflictResponse {
	var out []ConflictResponse
	for _, c := range conflicts {
		out = append(out, ConflictResponse{
			Kind:       string(c.Kind),
			LineNumber: c.LineNumber,
			Serial:     c.Serial,
			Detail:     c.Detail,
		})
	}
	return out
}

func toCreateInput(req CreateDocumentRequest) CreateInput {
	input := CreateInput{
		Type:        DocumentType(req.Type),
		Number:      req.Number,
		BranchID:    req.BranchID,
		BranchName:  req.BranchName,
		PartnerCode: req.PartnerCode,
		PartnerName: req.PartnerName,
		Notes:       req.Notes,
	}
	input.Lines = toLineInputs(req.Lines)
	return input
}

func toLineInputs(reqs []LineItemRequest) []LineInput {
	var lines []LineInput
	for _, lr := range reqs {
		line := LineInput{
			ItemCode:        lr.ItemCode,
			ItemDescription: lr.ItemDescription,
			Quantity:        lr.Quantity,
			WarehouseCode:   lr.WarehouseCode,
			BinCode:         lr.BinCode,
			SerialTracked:   lr.SerialTracked,
		}
		for _, sr := range lr.Serials {
			source := sr.Source
			if source == "" {
				source = "scan"
			}
			line.Serials = append(line.Serials, SerialInput{Value: sr.Value, Source: source})
		}
		lines = append(lines, line)
	}
	return lines
}

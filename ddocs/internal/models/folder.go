package models

import "time"

// Folder is an on-chain folder record.
type Folder struct {
	OnchainFileID                 string    `json:"onchainFileId"`
	FolderID                      string    `json:"folderId"`
	FolderRef                     string    `json:"folderRef"`
	FolderName                    string    `json:"folderName"`
	PortalAddress                 string    `json:"portalAddress"`
	MetadataIPFSHash              string    `json:"metadataIPFSHash"`
	LastTransactionBlockNumber    int64     `json:"lastTransactionBlockNumber"`
	LastTransactionBlockTimestamp int64     `json:"lastTransactionBlockTimestamp"`
	CreatedAt                     time.Time `json:"createdAt"`
}

// FolderRequiredFields lists the fields a create request must carry.
var FolderRequiredFields = []string{
	"onchainFileId",
	"folderId",
	"folderRef",
	"folderName",
	"portalAddress",
	"metadataIPFSHash",
	"lastTransactionBlockNumber",
	"lastTransactionBlockTimestamp",
}

// MissingFolderField returns the first required field absent from body.
// Empty strings and nulls count as missing; a numeric zero does not.
func MissingFolderField(body map[string]any) (string, bool) {
	for _, field := range FolderRequiredFields {
		v, ok := body[field]
		if !ok || v == nil {
			return field, true
		}
		if s, isString := v.(string); isString && s == "" {
			return field, true
		}
		if b, isBool := v.(bool); isBool && !b {
			return field, true
		}
	}
	return "", false
}

// FolderList is a page of folders.
type FolderList struct {
	Folders []*Folder `json:"folders"`
	Total   int       `json:"total"`
	HasNext bool      `json:"hasNext"`
}


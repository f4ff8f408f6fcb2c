package types

import (
	"math"
	"strconv"
	"unicode/utf8"
)

const listPreviewRunes = 100

// NewFileInfo converts a stored document to its listing shape.
func NewFileInfo(doc Document) FileInfo {
	info := FileInfo{
		ID:           doc.ID,
		Name:         doc.Name,
		Size:         doc.Size,
		SizeHuman:    HumanSize(doc.Size),
		MimeType:     doc.MimeType,
		HasEmbedding: doc.HasEmbedding(),
		CreatedAt:    doc.CreatedAt,
	}
	if doc.Content != nil {
		info.Preview = *doc.Content
		if utf8.RuneCountInString(info.Preview) > listPreviewRunes {
			info.Preview = string([]rune(info.Preview)[:listPreviewRunes]) + "..."
		}
	}
	return info
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// HumanSize formats a byte count in 1024 steps with at most two decimals,
// e.g. "0 Bytes", "1.5 KB".
func HumanSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := min(int(math.Floor(math.Log(float64(bytes))/math.Log(1024))), len(sizeUnits)-1)
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

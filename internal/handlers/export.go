package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"callinsight-backend/internal/services"
)

// writeExport renders table (csv, xlsx) or payload (json) as a download.
// Nothing is written to w when rendering fails.
func writeExport(w http.ResponseWriter, format, baseName string, table services.ExportTable, payload interface{}) error {
	var buf bytes.Buffer
	var err error
	switch format {
	case services.ExportJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(payload)
	case services.ExportXLSX:
		err = services.WriteXLSX(&buf, table)
	default:
		err = services.WriteCSV(&buf, table)
	}
	if err != nil {
		return err
	}

	fileName := fmt.Sprintf("%s-%s.%s", baseName, time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", services.ExportContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
	return nil
}

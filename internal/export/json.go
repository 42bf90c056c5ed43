package export

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tidwall/pretty"

	"github.com/sells-group/earnings-cli/internal/model"
)

// MarshalOverview renders ov as indented JSON with absent values as null.
// HTML characters are left unescaped.
func MarshalOverview(ov model.Overview) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ov); err != nil {
		return nil, eris.Wrap(err, "export: marshal overview")
	}
	return pretty.Pretty(buf.Bytes()), nil
}

// WriteOverviewJSON writes <TICKER>_eh_overview.json under dir.
func WriteOverviewJSON(dir, ticker string, ov model.Overview) (string, error) {
	data, err := MarshalOverview(ov)
	if err != nil {
		return "", err
	}
	return writeAtomic(dir, OverviewName(ticker), func(w io.Writer) error {
		_, err := w.Write(data)
		return eris.Wrap(err, "export: write overview")
	})
}

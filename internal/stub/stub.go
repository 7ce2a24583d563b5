// Package stub carries the per-variant RAM loader programs. Each stub
// is stored in the esptool JSON interchange format (entry point plus
// base64 text/data sections with their load addresses) and embedded
// into the binary.
package stub

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

//go:embed stubs/*.json
var stubFS embed.FS

// Image is a relocatable loader program ready to be written into
// target RAM.
type Image struct {
	Entry     uint32
	TextStart uint32
	Text      []byte
	DataStart uint32
	Data      []byte
}

type stubJSON struct {
	Entry     uint32 `json:"entry"`
	Text      string `json:"text"`
	TextStart uint32 `json:"text_start"`
	Data      string `json:"data"`
	DataStart uint32 `json:"data_start"`
}

// Load returns the embedded stub image with the given name
// (chip.Params.StubName).
func Load(name string) (*Image, error) {
	raw, err := stubFS.ReadFile("stubs/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("no stub for %q: %w", name, err)
	}

	var sj stubJSON
	if err := json.Unmarshal(raw, &sj); err != nil {
		return nil, fmt.Errorf("stub %q: %w", name, err)
	}

	text, err := base64.StdEncoding.DecodeString(sj.Text)
	if err != nil {
		return nil, fmt.Errorf("stub %q text: %w", name, err)
	}
	data, err := base64.StdEncoding.DecodeString(sj.Data)
	if err != nil {
		return nil, fmt.Errorf("stub %q data: %w", name, err)
	}
	if len(text) == 0 || sj.Entry == 0 {
		return nil, fmt.Errorf("stub %q: missing text or entry", name)
	}

	return &Image{
		Entry:     sj.Entry,
		TextStart: sj.TextStart,
		Text:      text,
		DataStart: sj.DataStart,
		Data:      data,
	}, nil
}

// Sections returns the loadable sections of the image in upload order.
func (im *Image) Sections() []Section {
	sections := []Section{{Addr: im.TextStart, Data: im.Text}}
	if len(im.Data) > 0 {
		sections = append(sections, Section{Addr: im.DataStart, Data: im.Data})
	}
	return sections
}

// Section is one contiguous RAM region of a stub image.
type Section struct {
	Addr uint32
	Data []byte
}

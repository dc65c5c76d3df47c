package shell

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
)

// TokenMeta is the name of the meta element carrying the IPC secret.
const TokenMeta = "wizardry-token"

// Title returns the window title for an application directory.
func Title(appDir string) string {
	name := filepath.Base(filepath.Clean(appDir))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "Wizardry"
	}
	return "Wizardry - " + name
}

// injectBootstrap adds the bridge bootstrap to an entry document: the token
// meta element and bridge script at the start of <head>, and a title when
// the document has none.
func injectBootstrap(doc []byte, token, title string) ([]byte, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse entry document: %w", err)
	}

	head := d.Find("head").First()
	head.PrependHtml(`<meta name="` + TokenMeta + `"/><script src="` + ScriptPath + `"></script>`)
	head.Find(`meta[name="` + TokenMeta + `"]`).SetAttr("content", token)

	if d.Find("title").Length() == 0 {
		head.AppendHtml("<title></title>")
		head.Find("title").SetText(title)
	}

	out, err := goquery.OuterHtml(d.Selection)
	if err != nil {
		return nil, fmt.Errorf("failed to render entry document: %w", err)
	}
	return []byte(out), nil
}

package mailbox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func inlinePNG(cid string, content []byte) filePart {
	return filePart{
		Attachment: Attachment{
			Filename: "img.png",
			Content:  content,
			Subtype:  "png",
			MIMEType: "image/png",
		},
		ContentID: cid,
	}
}

func TestEmbedInlineImages_Basic(t *testing.T) {
	content := []byte("X")
	html := `<img src="cid:abc">`

	got := embedInlineImages(html, []filePart{inlinePNG("abc", content)})

	want := `<img src="data:image/png;base64,` +
		base64.StdEncoding.EncodeToString(content) + `">`
	assert.Equal(t, want, got)
}

func TestEmbedInlineImages_PreservesQuoteStyle(t *testing.T) {
	content := []byte("pixels")
	data := base64.StdEncoding.EncodeToString(content)
	res := []filePart{inlinePNG("logo", content)}

	assert.Equal(t,
		`<img src='data:image/png;base64,`+data+`'>`,
		embedInlineImages(`<img src='cid:logo'>`, res))

	// Unquoted references work too.
	assert.Equal(t,
		`<img src=data:image/png;base64,`+data+`>`,
		embedInlineImages(`<img src=cid:logo>`, res))
}

func TestEmbedInlineImages_NoOpFastPaths(t *testing.T) {
	html := `<p>nothing inline</p>`
	assert.Equal(t, html, embedInlineImages(html, nil))

	withCid := `<img src="cid:abc">`
	assert.Equal(t, withCid, embedInlineImages(withCid, nil))
}

func TestEmbedInlineImages_UnknownCidLeftUntouched(t *testing.T) {
	html := `<img src="cid:known"> and <img src="cid:unknown">`
	content := []byte("Y")

	got := embedInlineImages(html, []filePart{inlinePNG("known", content)})

	assert.Contains(t, got, "data:image/png;base64,")
	assert.Contains(t, got, `src="cid:unknown"`)
}

func TestEmbedInlineImages_Idempotent(t *testing.T) {
	res := []filePart{inlinePNG("abc", []byte("content"))}
	html := `<img src="cid:abc"> <img src="cid:missing">`

	once := embedInlineImages(html, res)
	twice := embedInlineImages(once, res)

	assert.Equal(t, once, twice)
}

func TestInlineMediaType_BareSubtypeHeuristic(t *testing.T) {
	full := &filePart{Attachment: Attachment{MIMEType: "image/jpeg"}}
	assert.Equal(t, "image/jpeg", inlineMediaType(full))

	bare := &filePart{Attachment: Attachment{MIMEType: "png"}}
	assert.Equal(t, "image/png", inlineMediaType(bare))

	empty := &filePart{Attachment: Attachment{Subtype: "gif"}}
	assert.Equal(t, "image/gif", inlineMediaType(empty))
}

package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textPart(subtype string) *MimePart {
	return &MimePart{Type: PartText, Subtype: subtype}
}

func TestClassifyParts_SingleLeafNumberedOne(t *testing.T) {
	leaves := classifyParts(textPart("plain"))

	require.Len(t, leaves, 1)
	assert.Equal(t, []int{1}, leaves[0].path)
	assert.Equal(t, classBody, leaves[0].class)
}

func TestClassifyParts_NestedNumbering(t *testing.T) {
	root := &MimePart{
		Type:    PartMultipart,
		Subtype: "mixed",
		Children: []*MimePart{
			textPart("plain"),
			{
				Type:    PartMultipart,
				Subtype: "related",
				Children: []*MimePart{
					textPart("html"),
					{
						Type:        PartImage,
						Subtype:     "png",
						Disposition: "inline",
						ContentID:   "<img1>",
					},
				},
			},
		},
	}

	leaves := classifyParts(root)
	require.Len(t, leaves, 3)

	assert.Equal(t, []int{1}, leaves[0].path)
	assert.Equal(t, []int{2, 1}, leaves[1].path)
	assert.Equal(t, []int{2, 2}, leaves[2].path)
	assert.Equal(t, "2.2", pathString(leaves[2].path))
	assert.Equal(t, classInline, leaves[2].class)
}

func TestClassifyLeaf_Policy(t *testing.T) {
	tests := []struct {
		name string
		part *MimePart
		want partClass
	}{
		{
			name: "declared attachment",
			part: &MimePart{Type: PartText, Subtype: "plain", Disposition: "attachment"},
			want: classAttachment,
		},
		{
			name: "inline with content id",
			part: &MimePart{Type: PartImage, Subtype: "png", Disposition: "inline", ContentID: "a"},
			want: classInline,
		},
		{
			name: "inline without content id falls through to body check",
			part: &MimePart{Type: PartText, Subtype: "html", Disposition: "inline"},
			want: classBody,
		},
		{
			name: "filename without disposition inferred as attachment",
			part: &MimePart{Type: PartApplication, Subtype: "pdf", Params: map[string]string{"name": "doc.pdf"}},
			want: classAttachment,
		},
		{
			name: "filename on text/plain stays body",
			part: &MimePart{Type: PartText, Subtype: "plain", Params: map[string]string{"name": "note.txt"}},
			want: classBody,
		},
		{
			name: "plain body",
			part: textPart("plain"),
			want: classBody,
		},
		{
			name: "html body",
			part: textPart("html"),
			want: classBody,
		},
		{
			name: "unlabeled non-text dropped",
			part: &MimePart{Type: PartApplication, Subtype: "octet-stream"},
			want: classIgnore,
		},
		{
			name: "text calendar dropped",
			part: &MimePart{Type: PartText, Subtype: "calendar"},
			want: classIgnore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyLeaf(tt.part))
		})
	}
}

func TestMimePart_Param(t *testing.T) {
	p := &MimePart{
		Params:            map[string]string{"CHARSET": "utf-8"},
		DispositionParams: map[string]string{"filename": "a.bin"},
	}
	assert.Equal(t, "utf-8", p.Param("charset"))
	assert.Equal(t, "a.bin", p.Param("filename"))
	assert.Equal(t, "", p.Param("boundary"))
}

func TestParsePartTypeAndEncoding(t *testing.T) {
	assert.Equal(t, PartText, ParsePartType("TEXT"))
	assert.Equal(t, PartMultipart, ParsePartType("Multipart"))
	assert.Equal(t, PartOther, ParsePartType("x-unknown"))

	assert.Equal(t, EncodingBase64, ParseEncoding("BASE64"))
	assert.Equal(t, EncodingQuotedPrintable, ParseEncoding("Quoted-Printable"))
	assert.Equal(t, Encoding7Bit, ParseEncoding(""))
	assert.Equal(t, EncodingOther, ParseEncoding("x-uuencode"))
}

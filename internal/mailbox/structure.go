package mailbox

import (
	"fmt"
	"strconv"
	"strings"
)

type partClass int

const (
	classIgnore partClass = iota
	classBody
	classAttachment
	classInline
)

// classifiedLeaf is one leaf of a message's MIME tree together with its
// dotted IMAP part path and the role it plays in the assembled record.
type classifiedLeaf struct {
	part  *MimePart
	path  []int
	class partClass
}

// classifyParts walks a body structure depth-first and classifies every
// leaf. A root without children is itself a single leaf numbered "1";
// otherwise children get 1-based positional indices, nested per level,
// mirroring IMAP section numbering.
func classifyParts(root *MimePart) []classifiedLeaf {
	if root == nil {
		return nil
	}
	if len(root.Children) == 0 {
		return []classifiedLeaf{{part: root, path: []int{1}, class: classifyLeaf(root)}}
	}

	var leaves []classifiedLeaf
	var walk func(p *MimePart, path []int)
	walk = func(p *MimePart, path []int) {
		for i, child := range p.Children {
			childPath := append(append([]int(nil), path...), i+1)
			if len(child.Children) > 0 {
				walk(child, childPath)
				continue
			}
			leaves = append(leaves, classifiedLeaf{
				part:  child,
				path:  childPath,
				class: classifyLeaf(child),
			})
		}
	}
	walk(root, nil)
	return leaves
}

// classifyLeaf applies the classification policy in its authoritative
// order: declared attachment disposition first, then inline-with-cid,
// then the filename inference servers force on us by omitting the
// disposition, then body candidates. Anything else is dropped.
func classifyLeaf(p *MimePart) partClass {
	disposition := strings.ToLower(strings.TrimSpace(p.Disposition))

	if disposition == "attachment" {
		return classAttachment
	}
	if disposition == "inline" && p.ContentID != "" {
		return classInline
	}

	media := p.MediaType()
	container := p.Type == PartMultipart || p.Type == PartMessage
	if p.Param("filename") != "" || p.Param("name") != "" {
		if media != "text/plain" && media != "text/html" && !container {
			return classAttachment
		}
	}

	if p.Type == PartText {
		sub := strings.ToLower(p.Subtype)
		if sub == "html" || sub == "plain" {
			return classBody
		}
	}

	return classIgnore
}

// pathString renders an IMAP part path in dotted form, e.g. "2.1.3".
func pathString(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// walkResult accumulates what a structure walk produced: the chosen body
// text and every attachment or inline resource, decoded.
type walkResult struct {
	body   string
	isHTML bool
	files  []filePart
}

// walkMessage fetches a message's body structure and collects its parts.
// A failed structure fetch is a StructureError; per-part fetch or decode
// failures skip that part with a sink note and the walk continues.
//
// Body policy: HTML always wins and fully replaces accumulated plain
// text, with a later HTML part replacing an earlier one. Plain text parts
// accumulate, joined by newlines, only until HTML is seen.
func (c *Checker) walkMessage(uid uint32) (walkResult, error) {
	root, err := c.sess.FetchStructure(uid, true)
	if err != nil {
		return walkResult{}, &StructureError{ID: uid, Err: err}
	}

	var res walkResult
	var plainFragments []string

	for _, leaf := range classifyParts(root) {
		if leaf.class == classIgnore {
			continue
		}

		raw, err := c.sess.FetchBodyPart(uid, leaf.path, true)
		if err != nil {
			c.sink.Notef("mailbox: fetching part %s of uid %d failed: %v", pathString(leaf.path), uid, err)
			continue
		}
		decoded := decodeTransfer(raw, leaf.part.Encoding)

		switch leaf.class {
		case classBody:
			text := normalizeText(decoded, leaf.part, c.sink)
			if strings.EqualFold(leaf.part.Subtype, "html") {
				res.body = text
				res.isHTML = true
			} else if !res.isHTML {
				plainFragments = append(plainFragments, text)
			}
		case classAttachment, classInline:
			res.files = append(res.files, c.buildFilePart(leaf, decoded))
		}
	}

	if !res.isHTML {
		res.body = strings.Join(plainFragments, "\n")
	}
	return res, nil
}

// buildFilePart turns a classified attachment or inline leaf into a
// filePart with a decoded filename, defaulting to a positional
// placeholder when the part declares none.
func (c *Checker) buildFilePart(leaf classifiedLeaf, content []byte) filePart {
	p := leaf.part

	filename := p.DispositionParams["filename"]
	if filename == "" {
		filename = p.Param("filename")
	}
	if filename == "" {
		filename = p.Param("name")
	}
	if filename != "" {
		filename = decodeHeaderValue(filename, c.sink)
	} else {
		filename = fmt.Sprintf("attachment-%s", pathString(leaf.path))
	}

	fp := filePart{
		Attachment: Attachment{
			Filename:    filename,
			Content:     content,
			Subtype:     strings.ToLower(p.Subtype),
			MIMEType:    p.MediaType(),
			Disposition: strings.ToLower(strings.TrimSpace(p.Disposition)),
		},
	}
	// Any part declaring a Content-ID is addressable from the body and
	// filtered out of the public attachment list, whether or not its
	// disposition said "inline".
	if p.ContentID != "" {
		fp.ContentID = stripAngles(p.ContentID)
	}
	return fp
}

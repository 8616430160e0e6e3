package mailbox

// assemble builds one MessageRecord. Identity resolution and the header
// fetch are fatal for the message; everything after degrades
// independently to its documented default and is only visible through the
// sink.
func (c *Checker) assemble(id uint32, uidMode bool) (*MessageRecord, error) {
	uid, seq, err := c.resolveIdentity(id, uidMode)
	if err != nil {
		return nil, &MessageProcessingError{ID: id, UIDMode: uidMode, Err: err}
	}

	header, err := c.sess.FetchHeader(uid, true)
	if err != nil {
		return nil, &MessageProcessingError{ID: id, UIDMode: uidMode, Err: err}
	}

	// A message whose structure or parts cannot be decoded is still a
	// valid result with an empty body and no attachments.
	walk, err := c.walkMessage(uid)
	if err != nil {
		c.sink.Notef("mailbox: %v, continuing with empty body", err)
		walk = walkResult{}
	}

	body := walk.body
	if body != "" && walk.isHTML {
		body = embedInlineImages(body, walk.files)
	}

	subject := decodeHeaderValue(header.RawSubject, c.sink)
	fromAddr, fromDisplay := resolveFrom(header, c.sink)

	rec := &MessageRecord{
		UID:         uid,
		SeqNum:      seq,
		MessageID:   header.MessageID,
		Subject:     subject,
		Body:        body,
		RawDate:     header.RawDate,
		Date:        resolveDate(header.InternalDate, header.RawDate),
		FromAddress: fromAddr,
		FromDisplay: fromDisplay,
		To:          formatAddressList(header.To, c.sink),
		Cc:          formatAddressList(header.Cc, c.sink),
		Bcc:         formatAddressList(header.Bcc, c.sink),
		Token:       extractToken(subject, c.pattern, c.sink),
		Unseen:      isUnseen(header),
	}

	// Inline resources were consumed by cid: resolution; only true
	// attachments surface on the record.
	for _, f := range walk.files {
		if f.ContentID == "" {
			rec.Attachments = append(rec.Attachments, f.Attachment)
		}
	}

	return rec, nil
}

// resolveIdentity cross-resolves whichever of the two identifiers the
// caller did not supply.
func (c *Checker) resolveIdentity(id uint32, uidMode bool) (uid, seq uint32, err error) {
	if uidMode {
		uid = id
		seq, err = c.sess.ResolveSeq(uid)
		return uid, seq, err
	}
	seq = id
	uid, err = c.sess.ResolveUID(seq)
	return uid, seq, err
}

// isUnseen applies the unseen rule: an explicit unseen flag, or recent
// mail the server has not yet marked seen. Some servers flag new mail
// \Recent before the unseen state is reflected.
func isUnseen(h *HeaderInfo) bool {
	if h.HasFlag(flagUnseen) {
		return true
	}
	return h.HasFlag(flagRecent) && !h.HasFlag(flagSeen)
}

package smtp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// 嵌套 multipart 的最大层数
const maxPartDepth = 8

// ParsedEmail 解析后的邮件。附件不保存。
type ParsedEmail struct {
	Subject string
	From    string
	Text    string
	HTML    string
}

// Body 优先返回 HTML 正文
func (p *ParsedEmail) Body() string {
	if p.HTML != "" {
		return p.HTML
	}
	return p.Text
}

// headerGetter 同时适配 mail.Header 与 textproto.MIMEHeader
type headerGetter interface {
	Get(key string) string
}

// ParseEmail 从原始 RFC 5322 数据中提取主题、发件人与正文
func ParseEmail(raw []byte) (*ParsedEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	parsed := &ParsedEmail{
		Subject: decodeHeader(msg.Header.Get("Subject")),
		From:    strings.TrimSpace(msg.Header.Get("From")),
	}
	if addr, err := mail.ParseAddress(parsed.From); err == nil {
		parsed.From = addr.Address
	}

	if err := parsed.collect(msg.Header, msg.Body, 0); err != nil {
		return nil, err
	}
	return parsed, nil
}

// collect 处理一个 MIME 实体，multipart 时递归处理各子部分
func (p *ParsedEmail) collect(header headerGetter, body io.Reader, depth int) error {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", nil
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return p.collectText(header, body, mediaType, params["charset"], depth == 0)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return errors.New("multipart message without boundary")
	}
	if depth >= maxPartDepth {
		return nil
	}

	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse multipart: %w", err)
		}
		if isAttachment(part.Header) {
			continue
		}
		if err := p.collect(part.Header, part, depth+1); err != nil {
			return err
		}
	}
}

// collectText 保存第一个 text/plain 与第一个 text/html 部分。顶层实体解码失败时返回错误。
func (p *ParsedEmail) collectText(header headerGetter, body io.Reader, mediaType, charset string, topLevel bool) error {
	var target *string
	switch {
	case strings.HasPrefix(mediaType, "text/html"):
		target = &p.HTML
	case strings.HasPrefix(mediaType, "text/plain"), topLevel:
		target = &p.Text
	default:
		return nil
	}
	if *target != "" {
		return nil
	}

	text, err := decodeBody(body, header.Get("Content-Transfer-Encoding"), charset)
	if err != nil {
		if topLevel {
			return fmt.Errorf("decode body: %w", err)
		}
		return nil
	}
	*target = text
	return nil
}

func isAttachment(header textproto.MIMEHeader) bool {
	disposition, _, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	return err == nil && disposition == "attachment"
}

// decodeBody 按传输编码与字符集解码为 UTF-8 文本
func decodeBody(r io.Reader, transferEncoding, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(data), nil
	}

	// 未知字符集保留原始字节
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(data), nil
	}
	converted, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return string(data), nil
	}
	return string(converted), nil
}

// decodeHeader 解码 RFC 2047 编码字
func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := &mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

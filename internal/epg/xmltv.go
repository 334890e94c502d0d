// SPDX-License-Identifier: MIT

// Package epg renders an assembled guide document as XMLTV.
package epg

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Element order inside Programme follows the XMLTV DTD.

type TV struct {
	XMLName       xml.Name    `xml:"tv"`
	SourceInfoURL string      `xml:"source-info-url,attr,omitempty"`
	SourceDataURL string      `xml:"source-data-url,attr,omitempty"`
	Generator     string      `xml:"generator-info-name,attr,omitempty"`
	Channels      []Channel   `xml:"channel"`
	Programmes    []Programme `xml:"programme"`
}

type Channel struct {
	ID          string `xml:"id,attr"`
	DisplayName Text   `xml:"display-name"`
	Icon        *Icon  `xml:"icon,omitempty"`
}

type Icon struct {
	Src string `xml:"src,attr"`
}

// Text is character data with an optional language attribute.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type Programme struct {
	Start      string      `xml:"start,attr"`
	Stop       string      `xml:"stop,attr"`
	Channel    string      `xml:"channel,attr"`
	Title      Text        `xml:"title"`
	SubTitle   *Text       `xml:"sub-title,omitempty"`
	Desc       *Text       `xml:"desc,omitempty"`
	Credits    *Credits    `xml:"credits,omitempty"`
	Date       string      `xml:"date,omitempty"`
	Categories []Text      `xml:"category"`
	Icons      []Icon      `xml:"icon"`
	Country    string      `xml:"country,omitempty"`
	EpisodeNum *EpisodeNum `xml:"episode-num,omitempty"`
	Rating     *Rating     `xml:"rating,omitempty"`
}

type Credits struct {
	Directors []string `xml:"director"`
	Actors    []string `xml:"actor"`
}

type EpisodeNum struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type Rating struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:"value"`
}

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	doctype   = `<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n"
)

// Render marshals the document with header and doctype, indented the way
// guide consumers expect to diff it.
func Render(tv *TV) ([]byte, error) {
	body, err := xml.MarshalIndent(tv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal xmltv: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(xmlHeader) + len(doctype) + len(body) + 1)
	buf.WriteString(xmlHeader)
	buf.WriteString(doctype)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

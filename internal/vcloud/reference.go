// Package vcloud holds the vCloud Director reference types and the adapter
// that turns a reference into the endpoint it points at.
package vcloud

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
)

// Reference is a pointer to a fuller vCloud resource. Listings return
// references (Org, VDC, Catalog, VApp links) instead of the resources
// themselves.
type Reference struct {
	Href *url.URL
	Name string
	Type string
	ID   string
}

// NewReference builds a Reference from a raw href.
func NewReference(href, name, mediaType string) (Reference, error) {
	u, err := url.Parse(href)
	if err != nil {
		return Reference{}, fmt.Errorf("invalid href %q: %w", href, err)
	}
	return Reference{Href: u, Name: name, Type: mediaType}, nil
}

// ReferenceToEndpoint returns the locator the reference points at. The
// returned URL is the reference's own, not a copy.
func ReferenceToEndpoint(ref Reference) *url.URL {
	return ref.Href
}

// Endpoints maps ReferenceToEndpoint over refs, preserving order.
func Endpoints(refs []Reference) []*url.URL {
	out := make([]*url.URL, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ReferenceToEndpoint(ref))
	}
	return out
}

// UnmarshalXML decodes any element carrying href, name, type and id
// attributes, e.g. <Org href="..." name="..." type="..."/>.
func (r *Reference) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	ref, err := referenceFromAttrs(start.Attr)
	if err != nil {
		return err
	}
	*r = ref
	return d.Skip()
}

func referenceFromAttrs(attrs []xml.Attr) (Reference, error) {
	var (
		ref  Reference
		href string
	)
	for _, attr := range attrs {
		switch attr.Name.Local {
		case "href":
			href = attr.Value
		case "name":
			ref.Name = attr.Value
		case "type":
			ref.Type = attr.Value
		case "id":
			ref.ID = attr.Value
		}
	}
	if href == "" {
		return Reference{}, errors.New("reference has no href")
	}

	u, err := url.Parse(href)
	if err != nil {
		return Reference{}, fmt.Errorf("invalid href %q: %w", href, err)
	}
	ref.Href = u
	return ref, nil
}

// ParseReferences returns a Reference for every element in the document
// that carries an href attribute, in document order.
func ParseReferences(r io.Reader) ([]Reference, error) {
	var refs []Reference

	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return refs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse references: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || !hasHref(start.Attr) {
			continue
		}

		ref, err := referenceFromAttrs(start.Attr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse <%s>: %w", start.Name.Local, err)
		}
		refs = append(refs, ref)
	}
}

func hasHref(attrs []xml.Attr) bool {
	for _, attr := range attrs {
		if attr.Name.Local == "href" && attr.Value != "" {
			return true
		}
	}
	return false
}

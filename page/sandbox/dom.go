package sandbox

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
)

const blankHTML = "<html><head></head><body></body></html>"

// Document is the parsed, read-only document of a sandbox page
type Document struct {
	doc *goquery.Document
	url string
}

// Element is a snapshot of a document element
type Element struct {
	TagName     string
	ID          string
	ClassName   string
	TextContent string
	Attributes  map[string]string
}

// Script is a classic script element in document order
type Script struct {
	Src  string // Empty for inline scripts
	Text string
}

// ParseDocument parses html served from documentURL
func ParseDocument(html, documentURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc, url: documentURL}, nil
}

// Title returns the text of the first <title>
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Query returns the elements matching a CSS selector
func (d *Document) Query(selector string) []*Element {
	var elements []*Element
	d.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		elements = append(elements, newElement(s))
	})
	return elements
}

// Scripts returns the classic scripts of the document in order
func (d *Document) Scripts() []Script {
	var scripts []Script
	d.doc.Find("script").Each(func(i int, s *goquery.Selection) {
		kind, _ := s.Attr("type")
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case "", "text/javascript", "application/javascript":
		default:
			return
		}
		src, _ := s.Attr("src")
		scripts = append(scripts, Script{Src: src, Text: s.Text()})
	})
	return scripts
}

func newElement(s *goquery.Selection) *Element {
	elem := &Element{
		TagName:     strings.ToUpper(goquery.NodeName(s)),
		TextContent: s.Text(),
		Attributes:  make(map[string]string),
	}
	if node := s.Get(0); node != nil {
		for _, attr := range node.Attr {
			elem.Attributes[attr.Key] = attr.Val
		}
	}
	elem.ID = elem.Attributes["id"]
	elem.ClassName = elem.Attributes["class"]
	return elem
}

// GetAttribute retrieves attribute value
func (e *Element) GetAttribute(name string) (string, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// injectDocument exposes d as the global document object
func injectDocument(vm *goja.Runtime, d *Document) error {
	document := vm.NewObject()

	if err := document.Set("title", d.Title()); err != nil {
		return err
	}
	_ = document.Set("URL", d.url)

	_ = document.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		elements := d.Query(call.Argument(0).String())
		if len(elements) == 0 {
			return goja.Null()
		}
		return elementProxy(vm, elements[0])
	})
	_ = document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		elements := d.Query(call.Argument(0).String())
		proxies := make([]interface{}, len(elements))
		for i, elem := range elements {
			proxies[i] = elementProxy(vm, elem)
		}
		return vm.NewArray(proxies...)
	})
	_ = document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		for _, elem := range d.Query("[id]") {
			if elem.ID == call.Argument(0).String() {
				return elementProxy(vm, elem)
			}
		}
		return goja.Null()
	})

	vm.Set("document", document)
	return nil
}

// elementProxy creates a proxy for a DOM element
func elementProxy(vm *goja.Runtime, elem *Element) goja.Value {
	return vm.ToValue(map[string]interface{}{
		"tagName":     elem.TagName,
		"id":          elem.ID,
		"className":   elem.ClassName,
		"textContent": elem.TextContent,
		"getAttribute": func(call goja.FunctionCall) goja.Value {
			if v, ok := elem.GetAttribute(call.Argument(0).String()); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		},
	})
}

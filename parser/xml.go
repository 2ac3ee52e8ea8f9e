package parser

import (
	"github.com/clbanning/mxj"
)

// ParseXML decodes an XML document into a generic map. Attributes are keyed
// with a leading "-", element text next to attributes is keyed "#text".
func ParseXML(body []byte) (map[string]interface{}, error) {
	data, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, err
	}
	return data.Old(), nil
}

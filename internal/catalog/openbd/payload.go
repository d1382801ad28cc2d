package openbd

// Record is the subset of an openBD catalog entry the engine reads. The API returns a JSON
// array whose elements are either a Record or null for a withdrawn ISBN.
type Record struct {
	Onix    Onix     `json:"onix"`
	Summary *Summary `json:"summary,omitempty"`
}

// Summary is openBD's flattened convenience view of the ONIX record.
type Summary struct {
	ISBN      string `json:"isbn"`
	Title     string `json:"title"`
	Volume    string `json:"volume"`
	Series    string `json:"series"`
	Publisher string `json:"publisher"`
	PubDate   string `json:"pubdate"`
	Cover     string `json:"cover"`
	Author    string `json:"author"`
}

// Onix carries the ONIX 3.0 sections used for extraction.
type Onix struct {
	RecordReference   string              `json:"RecordReference"`
	ProductIdentifier []ProductIdentifier `json:"ProductIdentifier"`
	DescriptiveDetail DescriptiveDetail   `json:"DescriptiveDetail"`
	CollateralDetail  *CollateralDetail   `json:"CollateralDetail,omitempty"`
	PublishingDetail  PublishingDetail    `json:"PublishingDetail"`
}

// ProductIdentifier identifies the product; type "15" is ISBN-13.
type ProductIdentifier struct {
	ProductIDType string `json:"ProductIDType"`
	IDValue       string `json:"IDValue"`
}

// DescriptiveDetail holds titles, contributors and subjects.
type DescriptiveDetail struct {
	TitleDetail []TitleDetail `json:"TitleDetail"`
	Contributor []Contributor `json:"Contributor"`
	Subject     []Subject     `json:"Subject"`
}

// TitleDetail groups title elements.
type TitleDetail struct {
	TitleType    string         `json:"TitleType"`
	TitleElement []TitleElement `json:"TitleElement"`
}

// TitleElement is one level of a title.
type TitleElement struct {
	TitleElementLevel string      `json:"TitleElementLevel"`
	PartNumber        string      `json:"PartNumber"`
	TitleText         ContentText `json:"TitleText"`
}

// ContentText is ONIX's {content, collationkey} pair.
type ContentText struct {
	Content      string `json:"content"`
	CollationKey string `json:"collationkey"`
}

// Contributor is an author, editor, illustrator, ...; role "A01" is the author.
type Contributor struct {
	SequenceNumber  string       `json:"SequenceNumber"`
	ContributorRole []string     `json:"ContributorRole"`
	PersonName      *ContentText `json:"PersonName,omitempty"`
}

// Subject is a classification; scheme "78" is the Japanese C-code.
type Subject struct {
	SubjectSchemeIdentifier string `json:"SubjectSchemeIdentifier"`
	SubjectCode             string `json:"SubjectCode"`
	SubjectHeadingText      string `json:"SubjectHeadingText"`
}

// CollateralDetail carries descriptive texts.
type CollateralDetail struct {
	TextContent []TextContent `json:"TextContent"`
}

// TextContent is one descriptive text; type "03" is the long description.
type TextContent struct {
	TextType        string `json:"TextType"`
	ContentAudience string `json:"ContentAudience"`
	Text            string `json:"Text"`
}

// PublishingDetail names the publisher and the publishing dates.
type PublishingDetail struct {
	Imprint        *Imprint         `json:"Imprint,omitempty"`
	Publisher      *Publisher       `json:"Publisher,omitempty"`
	PublishingDate []PublishingDate `json:"PublishingDate"`
}

// Imprint is the brand a title is published under.
type Imprint struct {
	ImprintName string `json:"ImprintName"`
}

// Publisher is the publishing company.
type Publisher struct {
	PublishingRole string `json:"PublishingRole"`
	PublisherName  string `json:"PublisherName"`
}

// PublishingDate is a dated event; role "01" is the publication date.
type PublishingDate struct {
	PublishingDateRole string `json:"PublishingDateRole"`
	Date               string `json:"Date"`
}

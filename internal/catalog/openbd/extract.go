package openbd

import "github.com/JakeFAU/bookfeed/internal/feed"

const (
	idTypeISBN13        = "15"
	roleAuthor          = "A01"
	dateRolePublication = "01"
	schemeCCode         = "78"
	textTypeDescription = "03"
)

// Extract flattens a catalog record into a BookRecord. Each field prefers the ONIX value and
// falls back to the summary view, then to "".
func Extract(r Record) feed.BookRecord {
	var s Summary
	if r.Summary != nil {
		s = *r.Summary
	}
	onix := r.Onix
	return feed.BookRecord{
		ISBN13:             firstNonEmpty(isbn(onix), s.ISBN),
		Title:              firstNonEmpty(title(onix), s.Title),
		Volume:             s.Volume,
		Author:             firstNonEmpty(author(onix), s.Author),
		Publisher:          firstNonEmpty(publisher(onix), s.Publisher),
		PublicationDate:    firstNonEmpty(publicationDate(onix), s.PubDate),
		Series:             s.Series,
		ClassificationCode: ccode(onix),
		CoverURL:           s.Cover,
		Description:        description(onix),
	}
}

func isbn(o Onix) string {
	for _, id := range o.ProductIdentifier {
		if id.ProductIDType == idTypeISBN13 {
			return id.IDValue
		}
	}
	return ""
}

func title(o Onix) string {
	details := o.DescriptiveDetail.TitleDetail
	if len(details) == 0 || len(details[0].TitleElement) == 0 {
		return ""
	}
	return details[0].TitleElement[0].TitleText.Content
}

func author(o Onix) string {
	for _, c := range o.DescriptiveDetail.Contributor {
		for _, role := range c.ContributorRole {
			if role != roleAuthor {
				continue
			}
			if c.PersonName == nil {
				return ""
			}
			return c.PersonName.Content
		}
	}
	return ""
}

func publisher(o Onix) string {
	pd := o.PublishingDetail
	var name string
	if pd.Publisher != nil {
		name = pd.Publisher.PublisherName
	}
	if name == "" && pd.Imprint != nil {
		name = pd.Imprint.ImprintName
	}
	return name
}

func publicationDate(o Onix) string {
	for _, d := range o.PublishingDetail.PublishingDate {
		if d.PublishingDateRole == dateRolePublication {
			return d.Date
		}
	}
	return ""
}

func ccode(o Onix) string {
	for _, s := range o.DescriptiveDetail.Subject {
		if s.SubjectSchemeIdentifier == schemeCCode {
			return s.SubjectCode
		}
	}
	return ""
}

func description(o Onix) string {
	if o.CollateralDetail == nil {
		return ""
	}
	for _, t := range o.CollateralDetail.TextContent {
		if t.TextType == textTypeDescription {
			return t.Text
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

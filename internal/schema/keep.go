package schema

// KeepKind names a markdown node kind the compiler models explicitly. The
// markdown walker and the generated validators both derive from
// KeepVariants, so adding a kind or property here updates both.
type KeepKind string

const (
	KeepAlert             KeepKind = "alert"
	KeepFootnoteReference KeepKind = "footnote_reference"
	KeepLinkCard          KeepKind = "link_card"
	KeepCodeblock         KeepKind = "codeblock"
	KeepHeading           KeepKind = "heading"
	KeepImage             KeepKind = "image"
)

// PropertyType is the value type of a keep node property.
type PropertyType string

const (
	PropTypeString  PropertyType = "string"
	PropTypeInteger PropertyType = "integer"
	// PropTypeContent holds a content column ({hash, size, content_type, ...}).
	PropTypeContent PropertyType = "content"
)

// KeepProperty is one attribute carried by a keep node. Every property is
// always present; Nullable ones may be null.
type KeepProperty struct {
	Name     string
	Type     PropertyType
	Nullable bool
	Enum     []string
}

// KeepVariant is a keep kind with its properties in serialization order.
type KeepVariant struct {
	Kind       KeepKind
	Properties []KeepProperty
}

// AlertVariants are the GFM alert labels, lower-cased.
var AlertVariants = []string{"note", "tip", "important", "warning", "caution"}

// Keep property names shared by the walker and the emitters.
const (
	PropVariant     = "variant"
	PropLabel       = "label"
	PropNumber      = "number"
	PropHref        = "href"
	PropHost        = "host"
	PropTitle       = "title"
	PropDescription = "description"
	PropImageURL    = "image"
	PropLang        = "lang"
	PropCode        = "code"
	PropLevel       = "level"
	PropSlug        = "slug"
	PropSrc         = "src"
	PropAlt         = "alt"
	PropWidth       = "width"
	PropHeight      = "height"
	PropSVG         = "svg"
	PropContent     = "content"
)

var keepVariants = []KeepVariant{
	{Kind: KeepAlert, Properties: []KeepProperty{
		{Name: PropVariant, Type: PropTypeString, Enum: AlertVariants},
	}},
	{Kind: KeepFootnoteReference, Properties: []KeepProperty{
		{Name: PropLabel, Type: PropTypeString},
		{Name: PropNumber, Type: PropTypeInteger, Nullable: true},
	}},
	{Kind: KeepLinkCard, Properties: []KeepProperty{
		{Name: PropHref, Type: PropTypeString},
		{Name: PropHost, Type: PropTypeString},
		{Name: PropTitle, Type: PropTypeString, Nullable: true},
		{Name: PropDescription, Type: PropTypeString, Nullable: true},
		{Name: PropImageURL, Type: PropTypeString, Nullable: true},
	}},
	{Kind: KeepCodeblock, Properties: []KeepProperty{
		{Name: PropLang, Type: PropTypeString, Nullable: true},
		{Name: PropTitle, Type: PropTypeString, Nullable: true},
		{Name: PropCode, Type: PropTypeString},
	}},
	{Kind: KeepHeading, Properties: []KeepProperty{
		{Name: PropLevel, Type: PropTypeInteger},
		{Name: PropSlug, Type: PropTypeString},
	}},
	{Kind: KeepImage, Properties: []KeepProperty{
		{Name: PropSrc, Type: PropTypeString},
		{Name: PropAlt, Type: PropTypeString},
		{Name: PropTitle, Type: PropTypeString, Nullable: true},
		{Name: PropWidth, Type: PropTypeInteger, Nullable: true},
		{Name: PropHeight, Type: PropTypeInteger, Nullable: true},
		{Name: PropSVG, Type: PropTypeString, Nullable: true},
		{Name: PropContent, Type: PropTypeContent, Nullable: true},
	}},
}

// KeepVariants returns the closed keep union.
func KeepVariants() []KeepVariant {
	out := make([]KeepVariant, len(keepVariants))
	copy(out, keepVariants)
	return out
}

// KeepVariantOf returns the variant for kind.
func KeepVariantOf(kind KeepKind) (KeepVariant, bool) {
	for _, v := range keepVariants {
		if v.Kind == kind {
			return v, true
		}
	}
	return KeepVariant{}, false
}

package domain

import "time"

// ProductKind distinguishes bank guarantees from short-term loans.
type ProductKind string

const (
	KindGuarantee ProductKind = "guarantee"
	KindLoan      ProductKind = "loan"
)

// Guarantee target codes.
const (
	TargetExecution   = "EXECUTION"
	TargetParticipant = "PARTICIPANT"
	TargetWarranty    = "WARRANTY"
	TargetAvansReturn = "AVANS_RETURN"
)

// Fielder exposes named fields for dotted-path resolution.
// The second return value reports whether the name is known.
type Fielder interface {
	Field(name string) (any, bool)
}

// Request is an application for a guarantee or loan.
type Request struct {
	ID             string         `json:"id"`
	Number         string         `json:"number,omitempty"`
	Kind           ProductKind    `json:"kind"`
	BankCode       string         `json:"bankCode,omitempty"`
	Interval       int            `json:"interval"` // days
	IntervalFrom   *time.Time     `json:"intervalFrom,omitempty"`
	IntervalTo     *time.Time     `json:"intervalTo,omitempty"`
	RequiredAmount float64        `json:"requiredAmount"`
	SuggestedPrice float64        `json:"suggestedPrice,omitempty"`
	Targets        []string       `json:"targets,omitempty"`
	Law            string         `json:"law,omitempty"`
	PlacementWay   string         `json:"placementWay,omitempty"`
	FinalDate      *time.Time     `json:"finalDate,omitempty"`
	Tender         *Tender        `json:"tender,omitempty"`
	Client         *Client        `json:"client,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// IsLoan reports whether the request is for a loan rather than a guarantee.
func (r *Request) IsLoan() bool {
	return r != nil && r.Kind == KindLoan
}

// Profile returns the client's questionnaire, or nil.
func (r *Request) Profile() *Profile {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Profile
}

// Tender is the procurement the guarantee secures.
type Tender struct {
	NotificationID  string         `json:"notificationId,omitempty"`
	Price           float64        `json:"price"`
	Law             string         `json:"law,omitempty"`
	PlacementWay    string         `json:"placementWay,omitempty"`
	PublishDate     *time.Time     `json:"publishDate,omitempty"`
	BeneficiaryINN  string         `json:"beneficiaryInn,omitempty"`
	BeneficiaryName string         `json:"beneficiaryName,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Client is the applicant company or entrepreneur.
type Client struct {
	ID           string         `json:"id,omitempty"`
	INN          string         `json:"inn"`
	OGRN         string         `json:"ogrn,omitempty"`
	KPP          string         `json:"kpp,omitempty"`
	Name         string         `json:"name,omitempty"`
	IsIndividual bool           `json:"isIndividual,omitempty"`
	Profile      *Profile       `json:"profile,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Profile is the client questionnaire (anketa).
type Profile struct {
	RegINN            string         `json:"regInn,omitempty"`
	RegOGRN           string         `json:"regOgrn,omitempty"`
	RegKPP            string         `json:"regKpp,omitempty"`
	RegStateDate      *time.Time     `json:"regStateDate,omitempty"`
	FullName          string         `json:"fullName,omitempty"`
	MainOKVED         string         `json:"mainOkved,omitempty"`
	LegalAddress      string         `json:"legalAddress,omitempty"`
	ActualAddress     string         `json:"actualAddress,omitempty"`
	AuthorizedCapital float64        `json:"authorizedCapital,omitempty"`
	StaffCount        int            `json:"staffCount,omitempty"`
	Persons           []Person       `json:"persons,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Person is a director, founder or beneficiary listed in the profile.
type Person struct {
	Name      string     `json:"name"`
	INN       string     `json:"inn,omitempty"`
	Role      string     `json:"role,omitempty"`
	Share     float64    `json:"share,omitempty"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

// Bank is the partner bank a request is being routed to.
type Bank struct {
	Code  string         `json:"code"`
	Name  string         `json:"name,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func stringsOrNil(s []string) any {
	if s == nil {
		return nil
	}
	return s
}

var requestFields = map[string]func(*Request) any{
	"id":              func(r *Request) any { return r.ID },
	"number":          func(r *Request) any { return r.Number },
	"kind":            func(r *Request) any { return string(r.Kind) },
	"bank_code":       func(r *Request) any { return r.BankCode },
	"interval":        func(r *Request) any { return r.Interval },
	"interval_from":   func(r *Request) any { return timeOrNil(r.IntervalFrom) },
	"interval_to":     func(r *Request) any { return timeOrNil(r.IntervalTo) },
	"required_amount": func(r *Request) any { return r.RequiredAmount },
	"suggested_price": func(r *Request) any { return r.SuggestedPrice },
	"targets":         func(r *Request) any { return stringsOrNil(r.Targets) },
	"law":             func(r *Request) any { return r.Law },
	"placement_way":   func(r *Request) any { return r.PlacementWay },
	"final_date":      func(r *Request) any { return timeOrNil(r.FinalDate) },
	"tender": func(r *Request) any {
		if r.Tender == nil {
			return nil
		}
		return r.Tender
	},
	"client": func(r *Request) any {
		if r.Client == nil {
			return nil
		}
		return r.Client
	},
	"profile": func(r *Request) any {
		if p := r.Profile(); p != nil {
			return p
		}
		return nil
	},
}

// Field implements Fielder.
func (r *Request) Field(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if get, ok := requestFields[name]; ok {
		return get(r), true
	}
	v, ok := r.Extra[name]
	return v, ok
}

var tenderFields = map[string]func(*Tender) any{
	"notification_id":  func(t *Tender) any { return t.NotificationID },
	"price":            func(t *Tender) any { return t.Price },
	"law":              func(t *Tender) any { return t.Law },
	"placement_way":    func(t *Tender) any { return t.PlacementWay },
	"publish_date":     func(t *Tender) any { return timeOrNil(t.PublishDate) },
	"beneficiary_inn":  func(t *Tender) any { return t.BeneficiaryINN },
	"beneficiary_name": func(t *Tender) any { return t.BeneficiaryName },
}

// Field implements Fielder.
func (t *Tender) Field(name string) (any, bool) {
	if t == nil {
		return nil, false
	}
	if get, ok := tenderFields[name]; ok {
		return get(t), true
	}
	v, ok := t.Extra[name]
	return v, ok
}

var clientFields = map[string]func(*Client) any{
	"id":            func(c *Client) any { return c.ID },
	"inn":           func(c *Client) any { return c.INN },
	"ogrn":          func(c *Client) any { return c.OGRN },
	"kpp":           func(c *Client) any { return c.KPP },
	"name":          func(c *Client) any { return c.Name },
	"is_individual": func(c *Client) any { return c.IsIndividual },
	"profile": func(c *Client) any {
		if c.Profile == nil {
			return nil
		}
		return c.Profile
	},
}

// Field implements Fielder.
func (c *Client) Field(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	if get, ok := clientFields[name]; ok {
		return get(c), true
	}
	v, ok := c.Extra[name]
	return v, ok
}

var profileFields = map[string]func(*Profile) any{
	"reg_inn":            func(p *Profile) any { return p.RegINN },
	"reg_ogrn":           func(p *Profile) any { return p.RegOGRN },
	"reg_kpp":            func(p *Profile) any { return p.RegKPP },
	"reg_state_date":     func(p *Profile) any { return timeOrNil(p.RegStateDate) },
	"full_name":          func(p *Profile) any { return p.FullName },
	"main_okved":         func(p *Profile) any { return p.MainOKVED },
	"legal_address":      func(p *Profile) any { return p.LegalAddress },
	"actual_address":     func(p *Profile) any { return p.ActualAddress },
	"authorized_capital": func(p *Profile) any { return p.AuthorizedCapital },
	"staff_count":        func(p *Profile) any { return p.StaffCount },
	"persons_count":      func(p *Profile) any { return len(p.Persons) },
}

// Field implements Fielder.
func (p *Profile) Field(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if get, ok := profileFields[name]; ok {
		return get(p), true
	}
	v, ok := p.Extra[name]
	return v, ok
}

var bankFields = map[string]func(*Bank) any{
	"code": func(b *Bank) any { return b.Code },
	"name": func(b *Bank) any { return b.Name },
}

// Field implements Fielder.
func (b *Bank) Field(name string) (any, bool) {
	if b == nil {
		return nil, false
	}
	if get, ok := bankFields[name]; ok {
		return get(b), true
	}
	v, ok := b.Extra[name]
	return v, ok
}

// Mapper is implemented by entities that can be flattened into plain maps
// for expression evaluation. A nil entity maps every known field to nil, so
// expressions over absent data see nulls instead of missing keys.
type Mapper interface {
	Map() map[string]any
}

func toMap[T any](fields map[string]func(*T) any, v *T, extra map[string]any) map[string]any {
	if v == nil {
		return nullMap(fields)
	}
	out := make(map[string]any, len(fields)+len(extra))
	for k, e := range extra {
		out[k] = e
	}
	for name, get := range fields {
		val := get(v)
		if m, ok := val.(Mapper); ok {
			val = m.Map()
		}
		out[name] = val
	}
	return out
}

func nullMap[T any](fields map[string]func(*T) any) map[string]any {
	out := make(map[string]any, len(fields))
	for name := range fields {
		out[name] = nil
	}
	return out
}

// Map implements Mapper.
func (r *Request) Map() map[string]any {
	if r == nil {
		return toMap(requestFields, nil, nil)
	}
	return toMap(requestFields, r, r.Extra)
}

// Map implements Mapper.
func (t *Tender) Map() map[string]any {
	if t == nil {
		return toMap(tenderFields, nil, nil)
	}
	return toMap(tenderFields, t, t.Extra)
}

// Map implements Mapper.
func (c *Client) Map() map[string]any {
	if c == nil {
		return toMap(clientFields, nil, nil)
	}
	return toMap(clientFields, c, c.Extra)
}

// Map implements Mapper. Persons are included as a list of maps.
func (p *Profile) Map() map[string]any {
	if p == nil {
		out := toMap(profileFields, nil, nil)
		out["persons"] = nil
		return out
	}
	out := toMap(profileFields, p, p.Extra)
	persons := make([]any, 0, len(p.Persons))
	for _, person := range p.Persons {
		persons = append(persons, map[string]any{
			"name":       person.Name,
			"inn":        person.INN,
			"role":       person.Role,
			"share":      person.Share,
			"birth_date": timeOrNil(person.BirthDate),
		})
	}
	out["persons"] = persons
	return out
}

// Map implements Mapper.
func (b *Bank) Map() map[string]any {
	if b == nil {
		return toMap(bankFields, nil, nil)
	}
	return toMap(bankFields, b, b.Extra)
}

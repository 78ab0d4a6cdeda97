package catalog

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Group node names used for tenant specific nodes.
const (
	GroupCustomFields     = "Custom Fields"
	GroupTransactionTypes = "Transaction Types"
	GroupCompanyEmails    = "Company Emails"
)

// SettingReadOnly marks a custom field that members can never edit.
const SettingReadOnly = "readonly"

// CustomField is a tenant defined customer field.
type CustomField struct {
	FriendlyName string  `json:"friendly_name"`
	Value        string  `json:"value"`
	Setting      *string `json:"setting,omitempty"`
}

// CompanyEmail is a tenant mailbox that members may be allowed to use.
type CompanyEmail struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// DynamicFields carries the tenant data a catalog is extended with.
type DynamicFields struct {
	CustomFields     []CustomField  `json:"custom_fields"`
	TransactionTypes []string       `json:"transaction_types"`
	CompanyEmails    []CompanyEmail `json:"company_emails"`
}

// CustomFieldViewParam derives the view param of a custom field from its id.
func CustomFieldViewParam(value string) string { return "acc_custom_v_" + encodeKey(value, '_') }

// CustomFieldEditParam derives the edit param of a custom field from its id.
func CustomFieldEditParam(value string) string { return "acc_custom_e_" + encodeKey(value, '_') }

// TransactionTypeParam derives the view param of a transaction type option.
// Options equal after TransactionTypeKey share a param.
func TransactionTypeParam(name string) string {
	return "acc_trx_v_" + encodeKey(TransactionTypeKey(name), ' ')
}

// TransactionTypeKey is the canonical form of a transaction type option:
// NFC normalised, lowercased, with whitespace runs collapsed to one space.
func TransactionTypeKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(name)), " "))
}

// CompanyEmailParam derives the view param of a company mailbox.
func CompanyEmailParam(id int64) string { return "acc_email_v_" + strconv.FormatInt(id, 10) }

// Extend returns a copy of c with nodes for the tenant's dynamic fields
// appended under their group nodes. Nodes whose params already exist are
// skipped, so extending twice with the same fields is a no-op.
func Extend(c Catalog, fields DynamicFields) Catalog {
	out := c.Clone()
	seen := make(map[string]struct{})
	for _, p := range out.Params() {
		seen[p] = struct{}{}
	}
	out.appendGroup(GroupCustomFields, "Tenant specific customer fields", customFieldNodes(fields.CustomFields, seen))
	out.appendGroup(GroupTransactionTypes, "Transaction type options", transactionTypeNodes(fields.TransactionTypes, seen))
	out.appendGroup(GroupCompanyEmails, "Company mailboxes", companyEmailNodes(fields.CompanyEmails, seen))
	return out
}

func (c *Catalog) appendGroup(name, info string, children []Node) {
	if len(children) == 0 {
		return
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Params()[0] < children[j].Params()[0]
	})
	for i := range c.Nodes {
		if c.Nodes[i].Name == name {
			c.Nodes[i].Children = append(c.Nodes[i].Children, children...)
			return
		}
	}
	c.Nodes = append(c.Nodes, Node{Name: name, Info: info, Children: children})
}

func claim(seen map[string]struct{}, param string) bool {
	if _, ok := seen[param]; ok {
		return false
	}
	seen[param] = struct{}{}
	return true
}

func customFieldNodes(fields []CustomField, seen map[string]struct{}) []Node {
	var nodes []Node
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		view := CustomFieldViewParam(f.Value)
		if !claim(seen, view) {
			continue
		}
		name := strings.TrimSpace(f.FriendlyName)
		if name == "" {
			name = f.Value
		}
		node := Node{
			Name: name,
			Info: "Custom field " + f.Value,
			View: &Slot{Param: view, Default: true, Description: "See " + name},
		}
		if f.Setting == nil || *f.Setting != SettingReadOnly {
			if edit := CustomFieldEditParam(f.Value); claim(seen, edit) {
				node.Edit = &Slot{Param: edit, Default: true, Description: "Change " + name}
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func transactionTypeNodes(types []string, seen map[string]struct{}) []Node {
	title := cases.Title(language.Und)
	var nodes []Node
	for _, t := range types {
		if TransactionTypeKey(t) == "" {
			continue
		}
		param := TransactionTypeParam(t)
		if !claim(seen, param) {
			continue
		}
		name := title.String(TransactionTypeKey(t))
		nodes = append(nodes, Node{
			Name: name,
			View: &Slot{Param: param, Default: true, Description: "Use transaction type " + name},
		})
	}
	return nodes
}

func companyEmailNodes(emails []CompanyEmail, seen map[string]struct{}) []Node {
	var nodes []Node
	for _, e := range emails {
		if e.ID <= 0 {
			continue
		}
		param := CompanyEmailParam(e.ID)
		if !claim(seen, param) {
			continue
		}
		nodes = append(nodes, Node{
			Name: e.Email,
			View: &Slot{Param: param, Default: false, Description: "Send from " + e.Email},
		})
	}
	return nodes
}

// encodeKey maps s onto param-safe text without losing information. Letters
// and digits of any script pass through and the under rune becomes '_'.
// Every other rune, '_' included when under is not '_', is written as
// -<hex>- so distinct inputs never share an encoding.
func encodeKey(s string, under rune) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == under:
			b.WriteByte('_')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('-')
			b.WriteString(strconv.FormatInt(int64(r), 16))
			b.WriteByte('-')
		}
	}
	return b.String()
}

package catalog

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.NotEmpty(t, c.Version)

	slot, kind, ok := c.Lookup("acc_v_client")
	require.True(t, ok)
	assert.Equal(t, KindView, kind)
	assert.True(t, slot.Default)

	for _, p := range []string{"acc_v_roles", "acc_e_roles", "acc_v_members", "acc_e_members"} {
		assert.True(t, c.Has(p), "expected %s in default catalog", p)
	}
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	a.Nodes[0].View.Default = false
	a.Nodes = append(a.Nodes, Node{Name: "Extra", View: &Slot{Param: "acc_v_extra"}})

	b := Default()
	assert.True(t, b.Nodes[0].View.Default)
	assert.False(t, b.Has("acc_v_extra"))
}

func TestValidateRejectsDuplicateParams(t *testing.T) {
	c := Catalog{Nodes: []Node{
		{Name: "A", View: &Slot{Param: "acc_v_a"}},
		{Name: "B", View: &Slot{Param: "acc_v_b"}, Children: []Node{
			{Name: "C", Edit: &Slot{Param: "acc_v_a"}},
		}},
	}}
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "acc_v_a")
}

func TestValidateRejectsEmptyNodes(t *testing.T) {
	c := Catalog{Nodes: []Node{{Name: "Empty"}}}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no capability")
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("version: x\nnodes:\n  - name: A\n    viewz: {param: p}\n"))
	require.Error(t, err)
}

func TestEmbeddedCatalogDecodesStrictly(t *testing.T) {
	c, err := Decode(bytes.NewReader(defaultYAML))
	require.NoError(t, err)
	assert.Equal(t, Default().Params(), c.Params())

	tampered := append(append([]byte{}, defaultYAML...), []byte("\nowner: ops\n")...)
	_, err = Decode(bytes.NewReader(tampered))
	require.Error(t, err)
}

func TestDecodeCatalog(t *testing.T) {
	src := `
version: "1"
nodes:
  - name: Customers
    view: {param: acc_v_client, default: true}
    children:
      - name: Export
        view: {param: acc_v_client_export, default: true}
`
	c, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"acc_v_client", "acc_v_client_export"}, c.Params())
}

func TestFindByNameAndPath(t *testing.T) {
	c := Default()
	members, ok := c.Find("Settings/Members")
	require.True(t, ok)
	assert.Equal(t, []string{"acc_v_members", "acc_e_members"}, members.Params())

	customers, ok := c.Find("Customers")
	require.True(t, ok)
	assert.Len(t, customers.Children, 3)
	assert.Contains(t, customers.SubtreeParams(), "acc_h_client_contacts")

	_, ok = c.Find("Nope")
	assert.False(t, ok)
}

func TestEachSlotFollowsKindOrder(t *testing.T) {
	n := Node{
		Name: "N",
		Hide: &Slot{Param: "h"},
		View: &Slot{Param: "v"},
		Edit: &Slot{Param: "e"},
	}
	var kinds []Kind
	n.EachSlot(func(k Kind, _ *Slot) { kinds = append(kinds, k) })
	assert.Equal(t, Kinds, kinds)
	assert.Equal(t, []string{"v", "e", "h"}, n.Params())
}

func sampleFields() DynamicFields {
	readonly := SettingReadOnly
	return DynamicFields{
		CustomFields: []CustomField{
			{FriendlyName: "Passport number", Value: "passport_no"},
			{FriendlyName: "VIP tier", Value: "vip", Setting: &readonly},
		},
		TransactionTypes: []string{"bank transfer", "Crédit card"},
		CompanyEmails:    []CompanyEmail{{ID: 7, Email: "support@example.com"}},
	}
}

func TestExtendAddsDynamicNodes(t *testing.T) {
	base := Default()
	ext := Extend(base, sampleFields())

	require.NoError(t, ext.Validate())
	for _, p := range []string{
		"acc_custom_v_passport_no",
		"acc_custom_e_passport_no",
		"acc_custom_v_vip",
		"acc_trx_v_bank_transfer",
		"acc_trx_v_crédit_card",
		"acc_email_v_7",
	} {
		assert.True(t, ext.Has(p), "missing %s", p)
	}
	assert.False(t, ext.Has("acc_custom_e_vip"), "readonly field must not get an edit slot")

	trx, ok := ext.Find(GroupTransactionTypes + "/Bank Transfer")
	require.True(t, ok)
	assert.Equal(t, "acc_trx_v_bank_transfer", trx.View.Param)

	assert.False(t, base.Has("acc_email_v_7"), "extend must not mutate its input")
}

func TestExtendIsIdempotent(t *testing.T) {
	fields := sampleFields()
	once := Extend(Default(), fields)
	twice := Extend(once, fields)
	assert.Equal(t, once, twice)

	params := twice.Params()
	uniq := make(map[string]struct{}, len(params))
	for _, p := range params {
		uniq[p] = struct{}{}
	}
	assert.Len(t, uniq, len(params))
}

func TestExtendIgnoresFieldOrder(t *testing.T) {
	fields := sampleFields()
	reversed := DynamicFields{
		CustomFields:     []CustomField{fields.CustomFields[1], fields.CustomFields[0]},
		TransactionTypes: []string{fields.TransactionTypes[1], fields.TransactionTypes[0]},
		CompanyEmails:    fields.CompanyEmails,
	}
	a := Extend(Default(), fields).Params()
	b := Extend(Default(), reversed).Params()
	sort.Strings(a)
	sort.Strings(b)
	assert.Equal(t, a, b)
}

func TestExtendSkipsEmptyGroups(t *testing.T) {
	ext := Extend(Default(), DynamicFields{
		CustomFields:     []CustomField{{FriendlyName: "Blank", Value: "  "}},
		TransactionTypes: []string{"  ", ""},
	})
	_, ok := ext.Find(GroupTransactionTypes)
	assert.False(t, ok)
	assert.Equal(t, len(Default().Nodes), len(ext.Nodes))
}

func TestExtendKeepsDistinctFieldIDs(t *testing.T) {
	ext := Extend(Catalog{}, DynamicFields{
		CustomFields: []CustomField{
			{FriendlyName: "Phone number", Value: "phone_number"},
			{FriendlyName: "Phone number (legacy)", Value: "phone-number"},
			{FriendlyName: "Телефон", Value: "телефон"},
			{FriendlyName: "電話", Value: "電話"},
		},
		TransactionTypes: []string{"Перевод", "Wire", "bank_transfer", "bank transfer"},
	})
	require.NoError(t, ext.Validate())

	params := []string{
		CustomFieldViewParam("phone_number"),
		CustomFieldViewParam("phone-number"),
		CustomFieldViewParam("телефон"),
		CustomFieldViewParam("電話"),
		TransactionTypeParam("Перевод"),
		TransactionTypeParam("Wire"),
		TransactionTypeParam("bank_transfer"),
		TransactionTypeParam("bank transfer"),
	}
	seen := map[string]bool{}
	for _, p := range params {
		assert.True(t, ext.Has(p), "missing %s", p)
		assert.False(t, seen[p], "param %s generated twice", p)
		seen[p] = true
	}
	assert.Equal(t, "acc_custom_v_phone_number", params[0])
	assert.Equal(t, "acc_custom_v_телефон", params[2])
	assert.Equal(t, "acc_trx_v_перевод", params[4])

	group, ok := ext.Find(GroupCustomFields)
	require.True(t, ok)
	assert.Len(t, group.Children, 4)
}

func TestTransactionTypeParamCanonicalForm(t *testing.T) {
	assert.Equal(t, "acc_trx_v_bank_transfer", TransactionTypeParam("  Bank \tTransfer "))
	assert.Equal(t, TransactionTypeParam("Crédit card"), TransactionTypeParam("Cre\u0301dit card"))
	assert.Equal(t, "acc_trx_v_deposit-2f-withdrawal", TransactionTypeParam("deposit/withdrawal"))
}

func TestEncodeKeyIsInjective(t *testing.T) {
	inputs := []string{"a_b", "a-b", "a b", "a-2d-b", "a_2d_b", "A_b", "é", "e\u0301", "", "-"}
	out := map[string]string{}
	for _, in := range inputs {
		key := encodeKey(in, '_')
		if prev, ok := out[key]; ok {
			t.Fatalf("%q and %q both encode to %q", prev, in, key)
		}
		out[key] = in
	}
}

func TestFindNodeWithSlashInName(t *testing.T) {
	ext := Extend(Default(), DynamicFields{TransactionTypes: []string{"deposit/withdrawal"}})

	byName, ok := ext.Find("Deposit/Withdrawal")
	require.True(t, ok)
	assert.Equal(t, TransactionTypeParam("deposit/withdrawal"), byName.View.Param)

	byPath, ok := ext.Find(GroupTransactionTypes + "/Deposit/Withdrawal")
	require.True(t, ok)
	assert.Equal(t, byName, byPath)
}

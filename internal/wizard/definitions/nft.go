package definitions

import (
	"fmt"

	"Agentrix-Chat/internal/wizard"
)

// NFT 集合向导的字段名，name 与 chain 与代币向导共用。
const (
	FieldDescription      = "description"
	FieldStandard         = "standard"
	FieldRoyalty          = "royalty"
	FieldRoyaltyRecipient = "royalty_recipient"
	FieldItems            = "items"
	FieldAutoList         = "auto_list"
	FieldListPrice        = "list_price"
)

// 支持的 NFT 标准。
const (
	StandardERC721  = "ERC-721"
	StandardERC1155 = "ERC-1155"
)

// NFT 返回 NFT 集合向导：集合信息、作品、上架、确认。
func NFT(opts ...Option) *wizard.Definition {
	o := buildOptions(opts)
	return &wizard.Definition{
		Kind:  wizard.KindNFTCollection,
		Title: "创建 NFT 集合",
		Steps: []wizard.Step{
			{
				Name:     "collection",
				Title:    "集合信息",
				Fields:   []string{FieldName, FieldDescription, FieldChain, FieldStandard, FieldRoyalty, FieldRoyaltyRecipient},
				Validate: o.validateCollection,
			},
			{
				Name:     "items",
				Title:    "上传作品",
				Fields:   []string{FieldItems},
				Validate: validateItems,
			},
			{
				Name:     "listing",
				Title:    "上架设置",
				Fields:   []string{FieldAutoList, FieldListPrice},
				Validate: validateListing,
			},
			{
				Name:  "review",
				Title: "确认创建",
			},
		},
		Defaults: map[string]any{
			FieldChain:    o.defaultChain,
			FieldStandard: StandardERC721,
			FieldRoyalty:  0.05,
		},
	}
}

func (o options) validateCollection(f wizard.Fields) map[string]string {
	errs := map[string]string{}
	if !f.Has(FieldName) {
		errs[FieldName] = "请输入集合名称"
	}
	if !o.allowsChain(f.String(FieldChain)) {
		errs[FieldChain] = "不支持的链"
	}
	switch f.String(FieldStandard) {
	case StandardERC721, StandardERC1155:
	default:
		errs[FieldStandard] = fmt.Sprintf("标准必须是 %s 或 %s", StandardERC721, StandardERC1155)
	}
	if f.Has(FieldRoyalty) {
		if r, ok := f.Float(FieldRoyalty); !ok || r < 0 || r > 1 {
			errs[FieldRoyalty] = "版税比例必须在 0 到 1 之间"
		}
	}
	if !validAddress(f, FieldRoyaltyRecipient) {
		errs[FieldRoyaltyRecipient] = "请输入有效的版税接收地址"
	}
	return errs
}

func validateItems(f wizard.Fields) map[string]string {
	items := f.Items(FieldItems)
	if len(items) == 0 {
		return map[string]string{FieldItems: "请至少添加一个作品"}
	}
	errs := map[string]string{}
	for i, item := range items {
		if wizard.String(item["name"]) == "" {
			errs[fmt.Sprintf("items[%d].name", i)] = "请输入作品名称"
		}
		if wizard.String(item["image"]) == "" {
			errs[fmt.Sprintf("items[%d].image", i)] = "请上传作品图片"
		}
	}
	return errs
}

func validateListing(f wizard.Fields) map[string]string {
	errs := map[string]string{}
	if f.Has(FieldAutoList) {
		if _, ok := wizard.Bool(f[FieldAutoList]); !ok {
			errs[FieldAutoList] = "请选择是或否"
		}
	}
	if f.Bool(FieldAutoList) {
		if price, ok := f.Float(FieldListPrice); !ok || price <= 0 {
			errs[FieldListPrice] = "自动上架需要设置有效的价格"
		}
	}
	return errs
}

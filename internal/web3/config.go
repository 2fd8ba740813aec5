package web3

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint definition.
type ChainDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}

// Artifact 是编译后的合约产物，兼容 Hardhat / Foundry 输出的 abi 与 bytecode 字段。
type Artifact struct {
	ABI      string
	Bytecode []byte
}

// LoadArtifact 读取合约产物 JSON 文件。
func LoadArtifact(path string) (Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("读取合约产物失败: %w", err)
	}
	return ParseArtifact(content)
}

// ParseArtifact 解析合约产物内容。bytecode 可以是字符串，也可以是 {"object": "..."} 形式。
func ParseArtifact(content []byte) (Artifact, error) {
	var raw struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(content, &raw); err != nil {
		return Artifact{}, fmt.Errorf("解析合约产物失败: %w", err)
	}
	if len(raw.ABI) == 0 {
		return Artifact{}, fmt.Errorf("合约产物缺少 abi")
	}

	var code string
	if err := json.Unmarshal(raw.Bytecode, &code); err != nil {
		var nested struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw.Bytecode, &nested); err != nil {
			return Artifact{}, fmt.Errorf("合约产物 bytecode 格式无效: %w", err)
		}
		code = nested.Object
	}
	bytecode := common.FromHex(strings.TrimSpace(code))
	if len(bytecode) == 0 {
		return Artifact{}, fmt.Errorf("合约产物 bytecode 为空")
	}
	return Artifact{ABI: string(raw.ABI), Bytecode: bytecode}, nil
}

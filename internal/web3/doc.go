// Package web3 houses blockchain connectivity used by the issuance wizards:
// the chain client contract, YAML chain definitions and compiled contract
// artifacts. Concrete EVM clients live in web3/ethereum and are looked up by
// chain name through web3/provider.
package web3

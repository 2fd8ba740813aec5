// Package issuance connects the token and NFT wizards to the submission
// pipeline: TaskSubmitter turns a wizard submit into a queued task and waits
// for its outcome, and ChainExecutor deploys the configured contract for that
// task on the selected chain.
package issuance

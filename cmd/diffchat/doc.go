// Diffchat keeps feature-scoped LLM conversations about code diffs.
//
// Each diff is uploaded to an OpenAI vector store. Questions asked under the
// same feature key continue one conversation across commits, so a reviewer
// role can reason about the feature as it evolves.
//
// Usage:
//
//	diffchat ask --diff abc1234.diff --role TechLead --feature BASEL-1 --version abc1234 --prompt "What changed?"
//	diffchat ask --git HEAD --role QA --feature BASEL-1 --prompt "What should I test?"
//	diffchat track --git HEAD --feature BASEL-1   # index and record a commit, no question
//	diffchat threads list                         # saved threads
//	diffchat history --feature BASEL-1            # recorded questions and answers
//	diffchat hook install --feature BASEL-1       # track every commit
//	diffchat files clear --yes                    # delete uploaded diffs from OpenAI
//	diffchat serve                                # MCP tools over stdio
package main

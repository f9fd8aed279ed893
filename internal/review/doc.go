// Package review holds the result types of a rule evaluation and the prompt
// and judgment formats shared by the synchronous and batch paths.
//
// A model is asked to judge one file against one rule and to answer with a
// JSON object: {"compliant": bool, "findings": [{snippet, description,
// suggestion}]}. [ParseJudgment] accepts that object wrapped in markdown
// fences, and also a bare findings array.
//
// Findings and evaluation errors are collected into a [Report], the
// structure every output format renders.
package review

// Package providers translates between rulecheck's canonical prompt and
// response shapes and each model provider's wire format.
//
// A [Registry] maps provider families (anthropic, amazon, openai) to
// [Adapter] values; model identifiers may carry a region-routing prefix such
// as "us." which is stripped before lookup. Unknown families produce an
// [UnsupportedModelError].
//
// Synchronous calls go through a [Client], which combines an adapter, an
// [Invoker] and a [Retrier]. The retrier evaluates an ordered list of
// [RetryPolicy] values: by default a long, jittered policy for throttling
// errors wrapped around a short policy for transient service errors.
package providers

/*
Package markov provides a small, dependency-free toolkit for building and
walking byte-level Markov chains in Go.

A Model maps every observed window of N bytes (the chain's order) to the
distinct bytes that followed it in a training corpus. Models are built once,
either in a single call to Build or incrementally through a Builder, and are
immutable afterwards, so a single Model can be shared by any number of
goroutines.

Generation is pull-based: a Chain walks a Model one byte at a time, drawing
each successor from an injected Rand. By default successors are chosen
uniformly among the distinct bytes observed; WithWeighted switches to
frequency-weighted selection. A Chain ends permanently when it reaches a
window with no recorded successor.

For persistence, see the store package.
*/
package markov

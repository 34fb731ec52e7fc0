/*
Package tpl resolves template paths to content-transformation chains and
executes them. A path like "page.gotpl.html" is broken down into the loader
that supplies its raw content, the FileType that classifies it, and an
ordered stack of renderer engines identified by chained file-extension
suffixes; the content flows loader -> renderer chain -> postprocessors.

All registration happens on a Manager before a single, one-way Finalize
call validates the configuration (extension disjointness across FileTypes,
loader and engine keys bound to known extensions) and locks it. After
Finalize the Manager is safe for concurrent rendering; renderer instances
are created lazily, once per engine/filetype pair, and reused for the
process lifetime.

The package ships filesystem, chain, prefix and database-backed loaders.
Renderer engines live in separate packages (see pkg/engines) and plug in
through the Engine and Renderer interfaces.
*/
package tpl

// Command mlld evaluates mlld source documents: a directive language
// mixing Markdown with /var, /exe, /run, /show, /import, /for, /when,
// /guard, /policy, /output, /path, and /export directives (spec §1). This
// package is the thin CLI collaborator described in spec §6.3 — it owns
// flag parsing, config/lockfile loading, and output formatting, and wires
// the concrete internal/platform ports into the engine under internal/.
package main

func main() {
	Execute()
}

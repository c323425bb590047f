// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	ModsDirNotFoundId
	MappingLoadFailedId
	HostPackagesInvalidId
	DescriptorParseErrorId
	ResolutionFailedId
	RewriteFailedId
	TransformTimeoutId
	TransformInterruptedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be read or does not match the schema.

## Things you can try:
- Check the file for CUE syntax errors
- Compare it with a fresh default:
~~~
$ crossmod config init --stdout
~~~
- Print the effective configuration:
~~~
$ crossmod config show
~~~`,
	}

	modsDirNotFoundIssue = &Issue{
		id: ModsDirNotFoundId,
		mdMsg: `
# Mods directory not found!

The directory holding guest package jars does not exist.

## Things you can try:
- Pass the directory explicitly with ` + "`--mods-dir`" + `
- Set ` + "`mods_dir`" + ` in your configuration file`,
	}

	mappingLoadFailedIssue = &Issue{
		id: MappingLoadFailedId,
		mdMsg: `
# Failed to load the mapping table!

Class, field and method names cannot be translated without a valid mapping table.

## The table is YAML with three sections:
~~~yaml
namespaces: {guest: intermediary, host: srg}
classes:
  net/minecraft/class_1297: net/minecraft/world/entity/Entity
fields:
  - {owner: net/minecraft/class_1297, name: field_6002, target: level}
methods:
  - {owner: net/minecraft/class_1297, name: method_5773, desc: ()V, target: tick}
~~~

## Things you can try:
- Check ` + "`mapping_file`" + ` in your configuration
- Make sure every member entry names its owner class`,
	}

	hostPackagesInvalidIssue = &Issue{
		id: HostPackagesInvalidId,
		mdMsg: `
# Invalid host package manifest!

The manifest listing packages the host provides natively does not match the schema.

## Example manifest:
~~~cue
packages: [
  {id: "forge", version: "47.2.0", provides: ["fabric-api-base"]},
]
~~~`,
	}

	descriptorParseErrorIssue = &Issue{
		id: DescriptorParseErrorId,
		mdMsg: `
# Failed to read a package descriptor!

A jar in the mods directory carries a ` + "`fabric.mod.json`" + ` that is malformed or invalid.

## Things you can try:
- Update the package to a newer release
- Remove the jar from the mods directory
- Report the problem to the package author`,
	}

	resolutionFailedIssue = &Issue{
		id: ResolutionFailedId,
		mdMsg: `
# Package constraints cannot be satisfied!

No combination of the located packages meets every declared requirement.

## Things you can try:
- Install the missing dependency or the required version
- Remove one side of a declared conflict
- Relax a constraint with an overrides file (` + "`overrides_file`" + `)
- Declare an alias when a host package provides the same API:
~~~
$ crossmod load --alias cloth-config=cloth-config2
~~~`,
	}

	rewriteFailedIssue = &Issue{
		id: RewriteFailedId,
		mdMsg: `
# Some packages could not be translated!

The listed packages contain classes that could not be read or rewritten. The other
packages were translated and remain usable.

## Things you can try:
- Run again with ` + "`--verbose`" + ` to see the failing class
- Check the audit report in the work directory`,
	}

	transformTimeoutIssue = &Issue{
		id: TransformTimeoutId,
		mdMsg: `
# Translation timed out!

The batch did not finish within the configured limit and was aborted.

## Things you can try:
- Raise ` + "`transform_timeout`" + ` in your configuration
- Run again; translated outputs are cached and skipped`,
	}

	transformInterruptedIssue = &Issue{
		id: TransformInterruptedId,
		mdMsg: `
# Translation interrupted!

The batch was cancelled before it finished. No cache entries were written for it.`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

A file in the mods or work directory could not be read or written.

## Things you can try:
- Check the permissions of ` + "`mods_dir`" + ` and ` + "`work_dir`" + `
- Run crossmod from an account that owns the game directory`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		modsDirNotFoundIssue.Id():      modsDirNotFoundIssue,
		mappingLoadFailedIssue.Id():    mappingLoadFailedIssue,
		hostPackagesInvalidIssue.Id():  hostPackagesInvalidIssue,
		descriptorParseErrorIssue.Id(): descriptorParseErrorIssue,
		resolutionFailedIssue.Id():     resolutionFailedIssue,
		rewriteFailedIssue.Id():        rewriteFailedIssue,
		transformTimeoutIssue.Id():     transformTimeoutIssue,
		transformInterruptedIssue.Id(): transformInterruptedIssue,
		permissionDeniedIssue.Id():     permissionDeniedIssue,
	}
)

func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

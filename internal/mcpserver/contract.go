package mcpserver

// ProjectFormatContract describes the project definition formats that LLM
// consumers should follow when editing files on disk.
const ProjectFormatContract = `# Raido Project Format Contract

A project definition is a tree of elements. Each element has a name,
ordered attributes, optional text and ordered children. The same tree can
be written as XML or as YAML; the file extension selects the format.

## Extensions

- XML: ` + "`" + `.xml` + "`" + `, ` + "`" + `.props` + "`" + `, ` + "`" + `.targets` + "`" + ` and any ` + "`" + `*proj` + "`" + ` extension (e.g. ` + "`" + `.proj` + "`" + `, ` + "`" + `.csproj` + "`" + `).
- YAML: ` + "`" + `.yaml` + "`" + `, ` + "`" + `.yml` + "`" + `.

## Structure

- The root element is normally ` + "`" + `project` + "`" + `.
- Property groups are elements named ` + "`" + `properties` + "`" + ` or ` + "`" + `PropertyGroup` + "`" + `.
  Each child is one property: its element name is the property name and its
  text is the value. Later definitions override earlier ones.
- Item groups are elements named ` + "`" + `items` + "`" + ` or ` + "`" + `ItemGroup` + "`" + `. Each child is one
  item; the element name is the item type and the ` + "`" + `include` + "`" + ` attribute is
  required. Other attributes become item metadata.
- ` + "`" + `$(Name)` + "`" + ` in a property value expands to an earlier property; in an
  item include it expands to the final value.

## XML example

` + "```" + `xml
<project>
  <properties>
    <Name>app</Name>
    <Output>bin/$(Name)</Output>
  </properties>
  <items>
    <Compile include="$(Name).go" generated="false"/>
  </items>
</project>
` + "```" + `

## YAML example

` + "```" + `yaml
name: project
children:
  - name: properties
    children:
      - name: Name
        text: app
      - name: Output
        text: bin/$(Name)
  - name: items
    children:
      - name: Compile
        attrs:
          include: $(Name).go
          generated: "false"
` + "```" + `

## Rules

1. Element and attribute names start with a letter or underscore and
   contain only letters, digits, ` + "`" + `_` + "`" + `, ` + "`" + `.` + "`" + ` and ` + "`" + `-` + "`" + `.
2. Attribute names are unique within an element.
3. YAML elements accept only the keys ` + "`" + `name` + "`" + `, ` + "`" + `attrs` + "`" + `, ` + "`" + `text` + "`" + ` and ` + "`" + `children` + "`" + `.
4. Files are UTF-8 with a trailing newline.
5. A malformed file never replaces the loaded project; fix it and reload.
6. Reloading is refused while the loaded project has unsaved edits.
`

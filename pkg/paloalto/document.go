package paloalto

import (
	"fmt"
	"strings"
)

const indent = "  "

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

func writeLine(b *strings.Builder, depth int, s string) {
	for i := 0; i < depth; i++ {
		b.WriteString(indent)
	}
	b.WriteString(s)
	b.WriteByte('\n')
}

// Render serializes the document into the nested PAN-OS configuration
// layout: applications, application groups, services, rules, address
// groups, addresses, under config/devices/vsys.
func (d *Document) Render() string {
	var b strings.Builder

	b.WriteString("<?xml version=\"1.0\"?>\n")
	b.WriteString("<config version=\"7.0.0\" urldb=\"paloaltonetworks\">\n")
	writeLine(&b, 1, "<devices>")
	writeLine(&b, 2, `<entry name="localhost.localdomain">`)
	writeLine(&b, 3, "<vsys>")
	writeLine(&b, 4, `<entry name="vsys1">`)
	d.renderApplications(&b)
	b.WriteByte('\n')
	d.renderApplicationGroups(&b)
	b.WriteByte('\n')
	d.renderServices(&b)
	b.WriteByte('\n')
	d.renderRules(&b)
	b.WriteByte('\n')
	d.renderAddressGroups(&b)
	b.WriteByte('\n')
	d.renderAddresses(&b)
	writeLine(&b, 4, "</entry>")
	writeLine(&b, 3, "</vsys>")
	writeLine(&b, 2, "</entry>")
	writeLine(&b, 1, "</devices>")
	b.WriteString("</config>\n")
	return b.String()
}

func (d *Document) renderApplications(b *strings.Builder) {
	entries := d.catalog.Entries()
	if len(entries) == 0 {
		writeLine(b, 5, "<application/>")
		return
	}
	writeLine(b, 5, "<application>")
	for _, app := range entries {
		writeLine(b, 6, fmt.Sprintf(`<entry name="%s">`, xmlEscape(app.Name)))
		writeLine(b, 7, "<category>"+xmlEscape(app.Category)+"</category>")
		writeLine(b, 7, "<subcategory>"+xmlEscape(app.Subcategory)+"</subcategory>")
		writeLine(b, 7, "<technology>"+xmlEscape(app.Technology)+"</technology>")
		writeLine(b, 7, "<description>"+xmlEscape(app.Description)+"</description>")
		writeLine(b, 7, "<default>")
		writeLine(b, 8, "<"+app.IdentKeyword+">")
		writeLine(b, 9, fmt.Sprintf("<type>%d</type>", app.TypeCode))
		writeLine(b, 8, "</"+app.IdentKeyword+">")
		writeLine(b, 7, "</default>")
		writeLine(b, 7, fmt.Sprintf("<risk>%d</risk>", app.Risk))
		writeLine(b, 6, "</entry>")
	}
	writeLine(b, 5, "</application>")
}

func (d *Document) renderApplicationGroups(b *strings.Builder) {
	if len(d.ApplicationGroups) == 0 {
		writeLine(b, 5, "<application-group/>")
		return
	}
	writeLine(b, 5, "<application-group>")
	for _, g := range d.ApplicationGroups {
		writeLine(b, 6, xmlEscape(g))
	}
	writeLine(b, 5, "</application-group>")
}

func (d *Document) renderServices(b *strings.Builder) {
	writeLine(b, 5, "<!-- Services -->")
	entries := d.services.Entries()
	if len(entries) == 0 {
		writeLine(b, 5, "<service/>")
		return
	}
	writeLine(b, 5, "<service>")
	for _, svc := range entries {
		writeLine(b, 6, fmt.Sprintf(`<entry name="%s">`, xmlEscape(svc.Name)))
		writeLine(b, 7, "<protocol>")
		writeLine(b, 8, "<"+svc.Protocol+">")
		writeLine(b, 9, "<port>"+xmlEscape(svc.Ports)+"</port>")
		writeLine(b, 8, "</"+svc.Protocol+">")
		writeLine(b, 7, "</protocol>")
		writeLine(b, 6, "</entry>")
	}
	writeLine(b, 5, "</service>")
}

func (d *Document) renderRules(b *strings.Builder) {
	writeLine(b, 5, "<!-- Rules -->")
	writeLine(b, 5, "<rulebase>")
	writeLine(b, 6, "<security>")
	writeLine(b, 7, "<rules>")
	for _, r := range d.Rules {
		renderRule(b, r)
	}
	writeLine(b, 7, "</rules>")
	writeLine(b, 6, "</security>")
	writeLine(b, 5, "</rulebase>")
}

func renderRule(b *strings.Builder, r *Rule) {
	writeLine(b, 8, fmt.Sprintf(`<entry name="%s">`, xmlEscape(r.Name)))
	if r.Description != "" {
		desc := r.Description
		if len(desc) > maxRuleDescriptionLength {
			desc = desc[:maxRuleDescriptionLength]
		}
		writeLine(b, 9, "<description>"+xmlEscape(desc)+"</description>")
	}
	writeMembers(b, "to", []string{r.ToZone})
	writeMembers(b, "from", []string{r.FromZone})
	writeMembers(b, "source", orAny(r.Source))
	writeMembers(b, "destination", orAny(r.Destination))
	switch {
	case len(r.Services) == 0 && len(r.Applications) == 0:
		writeMembers(b, "service", []string{"any"})
	case len(r.Services) == 0:
		writeMembers(b, "service", []string{"application-default"})
	default:
		writeMembers(b, "service", r.Services)
	}
	writeLine(b, 9, "<action>"+r.Action+"</action>")
	if r.FromZone != r.ToZone || (r.FromZone == "" && r.ToZone == "") {
		writeLine(b, 9, "<rule-type>interzone</rule-type>")
	}
	writeMembers(b, "application", orAny(r.Applications))
	if r.LogDisable {
		writeLine(b, 9, "<log-start>no</log-start>")
		writeLine(b, 9, "<log-end>no</log-end>")
	}
	if r.LogStart {
		writeLine(b, 9, "<log-start>yes</log-start>")
	}
	if r.LogEnd {
		writeLine(b, 9, "<log-end>yes</log-end>")
	}
	writeLine(b, 8, "</entry>")
}

func writeMembers(b *strings.Builder, element string, members []string) {
	writeLine(b, 9, "<"+element+">")
	for _, m := range members {
		writeLine(b, 10, "<member>"+xmlEscape(m)+"</member>")
	}
	writeLine(b, 9, "</"+element+">")
}

func orAny(members []string) []string {
	if len(members) == 0 {
		return []string{"any"}
	}
	return members
}

func (d *Document) renderAddressGroups(b *strings.Builder) {
	writeLine(b, 5, "<!-- Address groups -->")
	writeLine(b, 5, "<address-group>")
	for _, key := range d.rendered.GroupKeys {
		writeLine(b, 6, fmt.Sprintf(`<entry name="%s">`, xmlEscape(key)))
		writeLine(b, 7, "<static>")
		for _, name := range d.rendered.Groups[key] {
			writeLine(b, 8, "<member>"+xmlEscape(name)+"</member>")
		}
		writeLine(b, 7, "</static>")
		writeLine(b, 6, "</entry>")
	}
	writeLine(b, 5, "</address-group>")
}

func (d *Document) renderAddresses(b *strings.Builder) {
	writeLine(b, 5, "<!-- Addresses -->")
	writeLine(b, 5, "<address>")
	for _, name := range d.rendered.Names {
		obj := d.rendered.Objects[name]
		writeLine(b, 6, fmt.Sprintf(`<entry name="%s">`, xmlEscape(name)))
		writeLine(b, 7, "<description>"+xmlEscape(name)+"</description>")
		writeLine(b, 7, "<ip-netmask>"+obj.String()+"</ip-netmask>")
		writeLine(b, 6, "</entry>")
	}
	writeLine(b, 5, "</address>")
}

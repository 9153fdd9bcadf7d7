package renderer

import (
	"fmt"
	"strings"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// DocumentTree is the structured intermediate form pandoc rendering
// consumes: a profile header, the stitched body's roles in order, and
// the company/role this run targeted, kept separate from markdown
// formatting so a future renderer (HTML, a different template) doesn't
// need to re-derive it from the domain types.
type DocumentTree struct {
	CandidateName string
	Company       string
	RoleTitle     string
	Profile       domain.ProfileOutput
	Body          domain.StitchedBody
}

// BuildDocumentTree assembles a DocumentTree from one tailoring run's
// profile and stitched body.
func BuildDocumentTree(candidateName string, jd domain.ExtractedJD, profile domain.ProfileOutput, body domain.StitchedBody) DocumentTree {
	return DocumentTree{
		CandidateName: candidateName,
		Company:       jd.CompanyName,
		RoleTitle:     jd.RoleTitle,
		Profile:       profile,
		Body:          body,
	}
}

// RenderMarkdown converts a DocumentTree into the markdown pandoc
// expects, mirroring the section order a tailored resume reads in:
// header, tagline, key achievements, core competencies, per-role
// bullets, then skills.
func RenderMarkdown(doc DocumentTree) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", doc.CandidateName)
	if doc.Profile.Headline != "" {
		fmt.Fprintf(&b, "## %s\n\n", doc.Profile.Headline)
	}
	if doc.Profile.Tagline != "" {
		fmt.Fprintf(&b, "*%s*\n\n", doc.Profile.Tagline)
	}

	if len(doc.Profile.KeyAchievements) > 0 {
		b.WriteString("## Key Achievements\n\n")
		for _, ka := range doc.Profile.KeyAchievements {
			fmt.Fprintf(&b, "- %s\n", ka.Text)
		}
		b.WriteString("\n")
	}

	if len(doc.Profile.CoreCompetencies) > 0 {
		fmt.Fprintf(&b, "## Core Competencies\n\n%s\n\n", strings.Join(doc.Profile.CoreCompetencies, " | "))
	}

	b.WriteString("## Experience\n\n")
	for _, role := range doc.Body.Roles {
		fmt.Fprintf(&b, "### %s, %s\n", role.Role, role.Company)
		if role.Timeframe != "" {
			fmt.Fprintf(&b, "*%s*\n", role.Timeframe)
		}
		b.WriteString("\n")
		for _, bullet := range role.Bullets {
			fmt.Fprintf(&b, "- %s\n", bullet.Text)
		}
		b.WriteString("\n")
	}

	if len(doc.Profile.SkillsSections) > 0 {
		b.WriteString("## Skills\n\n")
		for _, section := range doc.Profile.SkillsSections {
			fmt.Fprintf(&b, "**%s:** %s\n\n", section.Label, strings.Join(section.Skills, ", "))
		}
	}

	return b.String()
}

// RenderDocument writes doc as markdown to markdownPath and, unless
// skipPDF is set, shells out to pandoc to produce a PDF at outputPath.
func RenderDocument(doc DocumentTree, markdownPath, outputPath, templatePath, classPath string, skipPDF bool) error {
	if err := WriteMarkdown(RenderMarkdown(doc), markdownPath); err != nil {
		return err
	}
	if skipPDF {
		return nil
	}
	return RenderPDF(markdownPath, outputPath, templatePath, classPath)
}

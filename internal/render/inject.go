package render

import (
	"fmt"
	"strings"
)

// Page styles applied before capturing. The dark theme is used for the
// long JPEG and the interactive page; the light theme for print.
const (
	darkCSS = `
body { background: #0f172a !important; margin: 0; padding: 0; }
svg { background: #0f172a !important; }
svg text, foreignObject div, foreignObject span, foreignObject p {
    color: #f8fafc !important;
    fill: #f8fafc !important;
}
`
	lightCSS = `
body { background: #ffffff !important; }
svg { background: #ffffff !important; }
svg text, foreignObject div, foreignObject span, foreignObject p {
    color: #4b5563 !important;
    fill: #4b5563 !important;
}
`
)

const toolbarTemplate = `
<div style="position: fixed; top: 20px; right: 20px; z-index: 9999; background: rgba(255,255,255,0.95); padding: 15px; border-radius: 12px; box-shadow: 0 10px 25px rgba(0,0,0,0.15); font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; backdrop-filter: blur(10px); border: 1px solid rgba(0,0,0,0.05); min-width: 220px;">
    <h3 style="margin: 0 0 15px 0; font-size: 16px; color: #1e293b; text-align: center; border-bottom: 2px solid #f1f5f9; padding-bottom: 10px;">💾 导出思维导图</h3>
    <a href="./%[1]s" download style="display: block; margin-bottom: 10px; text-decoration: none; color: white; background: #eab308; padding: 10px 15px; border-radius: 8px; text-align: center; font-size: 14px; font-weight: 600;">🖼️ 下载高清长图 (JPG)</a>
    <a href="./%[2]s" download style="display: block; margin-bottom: 10px; text-decoration: none; color: white; background: #3b82f6; padding: 10px 15px; border-radius: 8px; text-align: center; font-size: 14px; font-weight: 600;">📄 下载打印版 (PDF)</a>
    <a href="./%[3]s" download="mindmap_xmind.md" style="display: block; margin-bottom: 10px; text-decoration: none; color: white; background: #10b981; padding: 10px 15px; border-radius: 8px; text-align: center; font-size: 14px; font-weight: 600;">📊 导出 XMind 格式</a>
    <a href="./%[3]s" download="mindmap_mindmanager.md" style="display: block; text-decoration: none; color: white; background: #f59e0b; padding: 10px 15px; border-radius: 8px; text-align: center; font-size: 14px; font-weight: 600;">🧠 导出 MindManager</a>
    <p style="margin: 15px 0 0 0; font-size: 12px; color: #64748b; text-align: center; line-height: 1.4;">提示：XMind 和 MindManager<br>均原生支持直接导入 Markdown</p>
</div>
`

// Toolbar returns the floating export panel linking the sibling files.
func Toolbar(jpgName, pdfName, mdName string) string {
	return fmt.Sprintf(toolbarTemplate, jpgName, pdfName, mdName)
}

// Decorate injects the export toolbar before </body> and the dark theme
// before </head>. Missing tags leave the page unchanged at that point.
func Decorate(page string, names Names) string {
	page = strings.Replace(page, "</body>", Toolbar(names.JPG, names.PDF, names.Markdown)+"</body>", 1)
	page = strings.Replace(page, "</head>", "<style>"+darkCSS+"</style>\n</head>", 1)
	return page
}

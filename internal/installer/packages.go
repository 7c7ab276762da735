package installer

// packageDirs maps package archive names to their extraction directory
// below the install root. Names not listed extract to the root.
var packageDirs = map[string]string{
	"ApplicationConfig.zip":             "ApplicationConfig",
	"redist.zip":                        "",
	"RobloxStudio.zip":                  "",
	"Libraries.zip":                     "",
	"LibrariesQt5.zip":                  "",
	"WebView2.zip":                      "",
	"WebView2RuntimeInstaller.zip":      "WebView2RuntimeInstaller",
	"content-avatar.zip":                "content/avatar",
	"content-configs.zip":               "content/configs",
	"content-fonts.zip":                 "content/fonts",
	"content-sky.zip":                   "content/sky",
	"content-sounds.zip":                "content/sounds",
	"content-textures2.zip":             "content/textures",
	"content-studio_svg_textures.zip":   "content/studio_svg_textures",
	"content-models.zip":                "content/models",
	"content-qt_translations.zip":       "content/qt_translations",
	"content-api-docs.zip":              "content/api_docs",
	"content-textures3.zip":             "PlatformContent/pc/textures",
	"content-terrain.zip":               "PlatformContent/pc/terrain",
	"content-platform-fonts.zip":        "PlatformContent/pc/fonts",
	"content-platform-dictionaries.zip": "PlatformContent/pc/shared_compression_dictionaries",
	"extracontent-scripts.zip":          "ExtraContent/scripts",
	"extracontent-luapackages.zip":      "ExtraContent/LuaPackages",
	"extracontent-translations.zip":     "ExtraContent/translations",
	"extracontent-models.zip":           "ExtraContent/models",
	"extracontent-textures.zip":         "ExtraContent/textures",
	"studiocontent-models.zip":          "StudioContent/models",
	"studiocontent-textures.zip":        "StudioContent/textures",
	"shaders.zip":                       "shaders",
	"BuiltInPlugins.zip":                "BuiltInPlugins",
	"BuiltInStandalonePlugins.zip":      "BuiltInStandalonePlugins",
	"Plugins.zip":                       "Plugins",
	"RibbonConfig.zip":                  "RibbonConfig",
	"StudioFonts.zip":                   "StudioFonts",
	"ssl.zip":                           "ssl",
}

// Destination returns the extraction directory for a package name,
// relative to the install root, using forward slashes.
func Destination(name string) string {
	return packageDirs[name]
}

// qtDirs are the locations the UI toolkit plugins may land in. Their
// contents belong at the install root.
var qtDirs = []string{"Qt5", "Plugins/Qt5"}

const appSettings = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\r\n" +
	"<Settings>\r\n" +
	"        <ContentFolder>content</ContentFolder>\r\n" +
	"        <BaseUrl>http://www.roblox.com</BaseUrl>\r\n" +
	"        <Channel>production</Channel>\r\n" +
	"</Settings>\r\n"

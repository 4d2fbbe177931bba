package scanner

// DefaultRules returns a fresh copy of the built in keyword tables.
func DefaultRules() *Rules {
	return &Rules{
		AutoExec:   copyGroups(AUTOEXEC_KEYWORDS),
		Suspicious: copyGroups(SUSPICIOUS_KEYWORDS),
	}
}

// Keywords of macros running automatically when the document is opened,
// closed or modified.
var AUTOEXEC_KEYWORDS = []*KeywordGroup{
	// Word
	{"Runs when the Word document is opened",
		[]string{"AutoExec", "AutoOpen", "Document_Open", "DocumentOpen"}},
	{"Runs when the Word document is closed",
		[]string{"AutoExit", "AutoClose", "Document_Close", "DocumentBeforeClose"}},
	{"Runs when the Word document is modified",
		[]string{"DocumentChange"}},
	{"Runs when a new Word document is created",
		[]string{"AutoNew", "Document_New", "NewDocument"}},

	// Excel
	{"Runs when the Excel Workbook is opened",
		[]string{"Auto_Open", "Workbook_Open", "Workbook_Activate"}},
	{"Runs when the Excel Workbook is closed",
		[]string{"Auto_Close", "Workbook_Close"}},
}

// Keywords that may be used by malware.
var SUSPICIOUS_KEYWORDS = []*KeywordGroup{
	{"May read system environment variables",
		[]string{"Environ"}},
	{"May open a file",
		[]string{"Open"}},
	{"May write to a file (if combined with Open)",
		[]string{"Write", "Put", "Output", "Print #"}},
	{"May read or write a binary file (if combined with Open)",
		[]string{"Binary"}},
	{"May copy a file",
		[]string{"FileCopy", "CopyFile"}},
	{"May delete a file",
		[]string{"Kill"}},
	{"May create a text file",
		[]string{"CreateTextFile", "ADODB.Stream", "WriteText", "SaveToFile"}},
	{"May run an executable file or a system command",
		[]string{"Shell", "vbNormal", "vbNormalFocus", "vbHide",
			"vbMinimizedFocus", "vbMaximizedFocus", "vbNormalNoFocus",
			"vbMinimizedNoFocus", "WScript.Shell", "Run"}},
	{"May run PowerShell commands",
		[]string{"PowerShell", "noexit", "ExecutionPolicy", "noprofile",
			"command", "EncodedCommand", "invoke-command", "scriptblock",
			"Invoke-Expression", "AuthorizationManager"}},
	{"May run an executable file or a system command using PowerShell",
		[]string{"Start-Process"}},
	{"May hide the application",
		[]string{"Application.Visible", "ShowWindow", "SW_HIDE"}},
	{"May create a directory",
		[]string{"MkDir"}},
	{"May save the current workbook",
		[]string{"ActiveWorkbook.SaveAs"}},
	{"May change which directory contains files to open at startup",
		[]string{"Application.AltStartupPath"}},
	{"May create an OLE object",
		[]string{"CreateObject"}},
	{"May create an OLE object using PowerShell",
		[]string{"New-Object"}},
	{"May run an application (if combined with CreateObject)",
		[]string{"Shell.Application"}},
	{"May enumerate application windows (if combined with Shell.Application object)",
		[]string{"Windows", "FindWindow"}},
	{"May run code from a DLL",
		[]string{"Lib"}},
	{"May inject code into another process",
		[]string{"CreateThread", "VirtualAlloc"}},
	{"May download files from the Internet",
		[]string{"URLDownloadToFileA", "Msxml2.XMLHTTP", "Microsoft.XMLHTTP",
			"MSXML2.ServerXMLHTTP", "User-Agent"}},
	{"May download files from the Internet using PowerShell",
		[]string{"Net.WebClient", "DownloadFile", "DownloadString"}},
	{"May control another application by simulating user keystrokes",
		[]string{"SendKeys", "AppActivate"}},
	{"May attempt to obfuscate malicious function calls",
		[]string{"CallByName"}},
	{"May attempt to obfuscate specific strings",
		[]string{"Chr", "ChrB", "ChrW", "StrReverse", "Xor"}},
	{"May read or write registry keys",
		[]string{"RegOpenKeyExA", "RegOpenKeyEx", "RegCloseKey"}},
	{"May read registry keys",
		[]string{"RegQueryValueExA", "RegQueryValueEx", "RegRead"}},
	{"May detect virtualization",
		[]string{`SYSTEM\ControlSet001\Services\Disk\Enum`, "VIRTUAL", "VMWARE", "VBOX"}},
	{"May detect Anubis Sandbox",
		[]string{"GetVolumeInformationA", "GetVolumeInformation",
			"1824245000",
			`HKEY_LOCAL_MACHINE\SOFTWARE\Microsoft\Windows NT\CurrentVersion\ProductId`,
			"76487-337-8429955-22614", "andy", "sample",
			`C:\exec\exec.exe`, "popupkiller"}},
	{"May detect Sandboxie",
		[]string{"SbieDll.dll", "SandboxieControlWndClass"}},
	{"May detect Sunbelt Sandbox",
		[]string{`C:\file.exe`}},
	{"May detect Norman Sandbox",
		[]string{"currentuser"}},
	{"May detect CW Sandbox",
		[]string{"Schmidti"}},
	{"May detect WinJail Sandbox",
		[]string{"Afx:400000:0"}},
}
